package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/features"
	"CryptoSignal/internal/scoreconfig"
	"CryptoSignal/internal/scoring/normalize"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	deriveInput   string
	deriveScoring string
	deriveTarget  float64
)

var deriveScaleCmd = &cobra.Command{
	Use:   "derive-scale",
	Short: "Derive per-factor tanh scales from historical observations",
	Long: `Derive the normalization scale for each scoring factor so the median
observation maps to the target score. Input is either a JSON object of
factor name to raw samples, or an array of asset snapshots whose feature
histories are pooled per factor.

The result is a YAML fragment for the factors section of the scoring
configuration. Factors without enough usable samples are reported on
stderr and left out.

Example:
  cryptosignal derive-scale --input samples.json --target 65`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(deriveInput)
		if err != nil {
			return fmt.Errorf("read samples: %w", err)
		}
		doc, err := scoreconfig.Load(deriveScoring)
		if err != nil {
			return err
		}
		samples, err := decodeSamples(b, doc)
		if err != nil {
			return err
		}
		target := deriveTarget
		if target <= 0 {
			target = doc.TargetScore
		}
		return deriveScales(doc, samples, target, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	deriveScaleCmd.Flags().StringVar(&deriveInput, "input", "", "JSON samples or snapshots")
	deriveScaleCmd.Flags().StringVar(&deriveScoring, "scoring", "config/scoring.yaml", "scoring configuration file")
	deriveScaleCmd.Flags().Float64Var(&deriveTarget, "target", 0, "score the median observation should map to (default: target_score from the scoring config)")
	_ = deriveScaleCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(deriveScaleCmd)
}

type scaleFragment struct {
	Factors []scaleEntry `yaml:"factors"`
}

type scaleEntry struct {
	Name          string `yaml:"name"`
	Normalization struct {
		Scale float64 `yaml:"scale"`
	} `yaml:"normalization"`
}

// decodeSamples reads either {"factor": [x, ...]} or an array of
// snapshots, whose feature histories are pooled by factor name.
func decodeSamples(b []byte, doc *scoreconfig.Document) (map[string][]float64, error) {
	if c, ok := firstNonSpace(b); ok && c == '{' {
		var m map[string][]float64
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode samples: %w", err)
		}
		return m, nil
	}
	snaps, err := decodeSnapshots(b)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64)
	for _, s := range snaps {
		if s == nil {
			continue
		}
		obs, _ := features.Extract(s, doc.Features)
		for name, o := range obs {
			out[name] = append(out[name], historyOf(o)...)
		}
	}
	return out, nil
}

func historyOf(o models.RawObservation) []float64 {
	if len(o.History) > 0 {
		return o.History
	}
	return []float64{o.Value}
}

func deriveScales(doc *scoreconfig.Document, samples map[string][]float64, target float64, w, errw io.Writer) error {
	var frag scaleFragment
	for _, f := range doc.Factors {
		if f.Kind == models.KindRegulator {
			continue
		}
		xs := samples[f.Name]
		scale, err := normalize.DeriveScale(xs, target)
		if err != nil {
			fmt.Fprintf(errw, "%s: %v\n", f.Name, err)
			continue
		}
		median, err := normalize.MedianScore(xs, scale)
		if err != nil {
			fmt.Fprintf(errw, "%s: %v\n", f.Name, err)
			continue
		}
		fmt.Fprintf(errw, "%s: %d samples, scale %.4f, median score %.1f\n", f.Name, len(xs), scale, median)

		e := scaleEntry{Name: f.Name}
		e.Normalization.Scale = scale
		frag.Factors = append(frag.Factors, e)
	}
	if len(frag.Factors) == 0 {
		return fmt.Errorf("no factor had usable samples")
	}
	sort.Slice(frag.Factors, func(i, j int) bool { return frag.Factors[i].Name < frag.Factors[j].Name })

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(frag); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	return enc.Close()
}
