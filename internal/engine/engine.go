// Package engine runs one asset through normalization, confidence grading,
// aggregation, calibration and the four decision stages.
package engine

import (
	"CryptoSignal/internal/decision"
	"CryptoSignal/internal/domain/models"
	domsvc "CryptoSignal/internal/domain/service"
	"CryptoSignal/internal/features"
	"CryptoSignal/internal/scoreconfig"
	"CryptoSignal/internal/scoring/aggregate"
	"CryptoSignal/internal/scoring/calibration"
	"CryptoSignal/internal/scoring/confidence"
	"CryptoSignal/internal/scoring/normalize"
)

// Input is everything needed to decide on one asset.
type Input struct {
	Symbol       string
	Observations map[string]models.RawObservation
	Market       models.MarketContext
}

// Engine is safe for concurrent use. Its only shared state lives in the
// confidence evaluator and the calibrator.
type Engine struct {
	doc        *scoreconfig.Document
	evaluator  *confidence.Evaluator
	calibrator *calibration.Calibrator
}

func New(doc *scoreconfig.Document, evaluator *confidence.Evaluator, calibrator *calibration.Calibrator) *Engine {
	if doc == nil {
		doc = scoreconfig.DefaultDocument()
	}
	if evaluator == nil {
		evaluator = confidence.NewEvaluator(doc.Confidence)
	}
	if calibrator == nil {
		calibrator = calibration.NewCalibrator(nil)
	}
	return &Engine{doc: doc, evaluator: evaluator, calibrator: calibrator}
}

// Document returns the scoring configuration in use.
func (e *Engine) Document() *scoreconfig.Document { return e.doc }

// EvaluateSnapshot extracts observations from snap and evaluates them.
func (e *Engine) EvaluateSnapshot(snap *models.AssetSnapshot) models.Decision {
	obs, mc := features.Extract(snap, e.doc.Features)
	return e.Evaluate(Input{Symbol: snap.Symbol, Observations: obs, Market: mc})
}

// Evaluate produces the Decision for one asset. It never fails: missing or
// unusable observations become DISABLED factors and flow through as such.
func (e *Engine) Evaluate(in Input) models.Decision {
	factors := e.Score(in.Observations)
	composite := aggregate.Aggregate(factors)

	table := e.calibrator.Table()
	pLong := probability(table, composite.WeightedScore)
	pShort := probability(table, -composite.WeightedScore)

	cfg := e.doc.Decision
	roles := e.doc.Roles
	mc := in.Market

	d := models.Decision{
		Symbol:        in.Symbol,
		Side:          models.SideNone,
		Composite:     composite,
		Factors:       factors,
		Probability:   pLong,
		Gates:         []models.GateResult{},
		RejectReasons: []string{},
	}

	st := decision.ConfirmDirection(decision.DirectionInput{
		Trend:            adjusted(factors, roles.Trend),
		Momentum:         adjusted(factors, roles.Momentum),
		Alignment:        adjusted(factors, roles.Alignment),
		Reference:        mc.Reference,
		QuoteVolume:      mc.QuoteVolume,
		FundingRate:      mc.FundingRate,
		SettlementWindow: mc.SettlementWindow,
		Vetoes:           mc.Vetoes,
		PLong:            pLong.CalibratedProbability,
		PShort:           pShort.CalibratedProbability,
	}, cfg.Direction)

	directed, ok := st.(decision.Directed)
	if !ok {
		return reject(d, st.(decision.Rejected))
	}
	d.Direction = directed.Direction
	d.Side = directed.Side()
	if d.Side == models.SideShort {
		d.Probability = pShort
	}

	timed := decision.JudgeTiming(directed, mc.Closes, mc.ATR, cfg.Timing)
	timing := timed.Timing
	d.Timing = &timing

	st = decision.PlanRisk(timed, mc, cfg.Risk)
	priced, ok := st.(decision.Priced)
	if !ok {
		return reject(d, st.(decision.Rejected))
	}
	plan := priced.Plan
	d.RiskPlan = &plan

	v := decision.RunGates(priced, decision.GateInput{
		ConfidentFactors: composite.ActiveFactors,
		FundingScore:     adjusted(factors, roles.Funding),
		Probability:      d.Probability.CalibratedProbability,
		VolatilityScore:  adjusted(factors, roles.Volatility),
		Reference:        mc.Reference,
	}, cfg.Quality)

	d.Gates = v.Gates
	d.Publish = v.Publish
	d.SoftPass = v.SoftPass
	d.RejectReasons = v.RejectReasons
	d.Annotations = v.Annotations
	return d
}

// Score normalizes and grades every configured factor in document order.
func (e *Engine) Score(obs map[string]models.RawObservation) []models.ScoredFactor {
	out := make([]models.ScoredFactor, 0, len(e.doc.Factors))
	for _, f := range e.doc.Factors {
		o, ok := obs[f.Name]
		actual := o.SampleCount

		var nf models.NormalizedFactor
		switch {
		case !ok:
			actual = 0
			nf = models.NormalizedFactor{Method: methodOf(f.Normalization.Mode), Diagnostics: map[string]any{"missing": true}}
		default:
			var err error
			nf, err = normalize.Normalize(o.Value, o.History, f.Normalization)
			if err != nil {
				actual = 0
				nf = models.NormalizedFactor{Method: methodOf(f.Normalization.Mode), Diagnostics: map[string]any{"error": err.Error()}}
			}
		}

		a := e.evaluator.Evaluate(f.Name, nf.Score, actual, f.MinSamples)
		out = append(out, models.ScoredFactor{
			Name:          f.Name,
			Kind:          f.Kind,
			Normalized:    nf,
			Confidence:    a.Confidence,
			Level:         a.Level,
			AdjustedScore: a.AdjustedScore,
			Weight:        f.Weight,
		})
	}
	return out
}

// probability calibrates a side-signed score against the given table. A
// probability-domain table is fed the raw score probability.
func probability(t *calibration.Table, score float64) models.CalibratedProbability {
	if t != nil && t.Domain() == calibration.DomainProbability {
		return t.Calibrate((score + 100) / 200)
	}
	return t.Calibrate(score)
}

func reject(d models.Decision, r decision.Rejected) models.Decision {
	d.Direction = r.Direction
	if r.Stage == 1 {
		d.Side = models.SideNone
		d.Timing = nil
	}
	d.RiskPlan = nil
	d.Gates = []models.GateResult{}
	d.Publish = false
	d.SoftPass = false
	d.RejectReasons = append([]string{}, r.Reasons...)
	return d
}

func adjusted(factors []models.ScoredFactor, name string) float64 {
	if name == "" {
		return 0
	}
	for _, f := range factors {
		if f.Name == name {
			return f.AdjustedScore
		}
	}
	return 0
}

func methodOf(mode models.NormalizationMode) models.NormalizationMethod {
	switch mode {
	case models.ModeZScore:
		return models.MethodZScore
	case models.ModePercentile:
		return models.MethodPercentile
	default:
		return models.MethodLegacy
	}
}

var _ domsvc.DecisionEngine = (*Engine)(nil)
