// Package scoreconfig loads the static scoring configuration: factor weights,
// normalization parameters, stage settings and the calibration table. A
// Document is validated once and shared read-only afterwards.
package scoreconfig

import (
	"fmt"
	"math"
	"os"
	"strings"

	"CryptoSignal/internal/decision"
	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/features"
	"CryptoSignal/internal/scoring/calibration"
	"CryptoSignal/internal/scoring/confidence"
	"CryptoSignal/internal/scoring/normalize"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigurationError lists every problem found in a scoring document. It is
// only ever returned at load time.
type ConfigurationError struct {
	Source   string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	src := e.Source
	if src == "" {
		src = "<inline>"
	}
	return fmt.Sprintf("scoring config %s: %d problem(s): %s", src, len(e.Problems), strings.Join(e.Problems, "; "))
}

type Factor struct {
	Name          string            `yaml:"name" validate:"required"`
	Kind          models.FactorKind `yaml:"kind" default:"SCORING" validate:"oneof=SCORING REGULATOR"`
	Weight        float64           `yaml:"weight" validate:"gte=0"`
	MinSamples    int               `yaml:"min_samples" default:"20" validate:"gte=1"`
	Normalization normalize.Params  `yaml:"normalization"`
}

// Roles names the factors that feed specific stage inputs.
type Roles struct {
	Trend      string `yaml:"trend" default:"trend"`
	Momentum   string `yaml:"momentum" default:"momentum"`
	Alignment  string `yaml:"alignment" default:"alignment"`
	Funding    string `yaml:"funding" default:"funding"`
	Volatility string `yaml:"volatility" default:"volatility"`
}

type Calibration struct {
	Domain         calibration.Domain      `yaml:"domain" default:"score" validate:"oneof=score probability"`
	Bins           []models.CalibrationBin `yaml:"bins"`
	RefitBins      int                     `yaml:"refit_bins" default:"10" validate:"gte=2"`
	RefitMinPerBin int                     `yaml:"refit_min_per_bin" default:"30" validate:"gte=1"`
}

// Table builds the configured calibration table.
func (c Calibration) Table() (*calibration.Table, error) {
	return calibration.NewTable(c.Domain, c.Bins)
}

type Document struct {
	Version         string  `yaml:"version" default:"1"`
	TotalWeight     float64 `yaml:"total_weight" default:"100" validate:"gt=0"`
	WeightTolerance float64 `yaml:"weight_tolerance" default:"0.5" validate:"gte=0"`
	// TargetScore is the score the median absolute deviation should map to
	// when deriving z-score scales.
	TargetScore float64           `yaml:"target_score" default:"65" validate:"gt=0,lt=100"`
	Factors     []Factor          `yaml:"factors" validate:"required,min=1,dive"`
	Roles       Roles             `yaml:"roles"`
	Features    features.Config   `yaml:"features"`
	Confidence  confidence.Config `yaml:"confidence"`
	Calibration Calibration       `yaml:"calibration"`
	Decision    decision.Config   `yaml:"decision"`
}

// Factor returns the named factor.
func (d *Document) Factor(name string) (Factor, bool) {
	for _, f := range d.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

// Load reads and validates a scoring document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring config: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		if ce, ok := err.(*ConfigurationError); ok {
			ce.Source = path
		}
		return nil, err
	}
	return doc, nil
}

// Parse decodes and validates a scoring document. Unset fields take their
// default tags; a field explicitly set to its zero value in a factor entry
// also takes the default.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := defaults.Set(doc); err != nil {
		return nil, fmt.Errorf("set scoring defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}
	for i := range doc.Factors {
		if err := defaults.Set(&doc.Factors[i]); err != nil {
			return nil, fmt.Errorf("set factor defaults: %w", err)
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

var validate = validator.New()

// Validate runs tag validation and the cross-field checks. It returns a
// *ConfigurationError listing every problem, or nil.
func (d *Document) Validate() error {
	var problems []string
	if err := validate.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %s %s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	seen := make(map[string]bool, len(d.Factors))
	var sum float64
	for _, f := range d.Factors {
		if seen[f.Name] {
			problems = append(problems, fmt.Sprintf("factor %q declared twice", f.Name))
		}
		seen[f.Name] = true
		if !knownFactor(f.Name) {
			problems = append(problems, fmt.Sprintf("factor %q is not produced by the feature extractor", f.Name))
		}
		if err := f.Normalization.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("factor %q normalization: %v", f.Name, err))
		}
		switch f.Kind {
		case models.KindRegulator:
			if f.Weight != 0 {
				problems = append(problems, fmt.Sprintf("regulator %q must not carry weight", f.Name))
			}
		default:
			sum += f.Weight
		}
	}
	if math.Abs(sum-d.TotalWeight) > d.WeightTolerance {
		problems = append(problems, fmt.Sprintf("scoring weights sum to %v, want %v ± %v", sum, d.TotalWeight, d.WeightTolerance))
	}

	problems = append(problems, d.checkRoles()...)

	if err := d.Decision.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			problems = append(problems, line)
		}
	}
	if _, err := d.Calibration.Table(); err != nil {
		problems = append(problems, err.Error())
	}
	if d.Confidence.WarningRatio > d.Confidence.CriticalRatio {
		problems = append(problems, "confidence warning_ratio must not exceed critical_ratio")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func (d *Document) checkRoles() []string {
	var problems []string
	scoring := map[string]string{
		"trend":     d.Roles.Trend,
		"momentum":  d.Roles.Momentum,
		"alignment": d.Roles.Alignment,
		"funding":   d.Roles.Funding,
	}
	for _, role := range []string{"trend", "momentum", "alignment", "funding"} {
		name := scoring[role]
		if name == "" {
			continue
		}
		f, ok := d.Factor(name)
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("role %s names unknown factor %q", role, name))
		case f.Kind != models.KindScoring:
			problems = append(problems, fmt.Sprintf("role %s must name a SCORING factor, %q is %s", role, name, f.Kind))
		}
	}
	if name := d.Roles.Volatility; name != "" {
		f, ok := d.Factor(name)
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("role volatility names unknown factor %q", name))
		case f.Kind != models.KindRegulator:
			problems = append(problems, fmt.Sprintf("role volatility must name a REGULATOR factor, %q is %s", name, f.Kind))
		}
	}
	return problems
}

func knownFactor(name string) bool {
	for _, n := range features.Names {
		if n == name {
			return true
		}
	}
	return false
}
