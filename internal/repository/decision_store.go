package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"CryptoSignal/internal/domain/models"
	domrepo "CryptoSignal/internal/domain/repository"
	"CryptoSignal/pkg/breaker"
	pkgch "CryptoSignal/pkg/clickhouse"
	applogger "CryptoSignal/pkg/logger"
)

// CHDecisionStore writes decision envelopes to ClickHouse. The full
// decision is kept as JSON next to the columns used for querying.
type CHDecisionStore struct {
	ch      *pkgch.Client
	insertQ string
	br      *breaker.Breaker
	l       *applogger.Logger
}

func NewCHDecisionStore(ch *pkgch.Client, br *breaker.Breaker) *CHDecisionStore {
	return &CHDecisionStore{
		ch: ch,
		insertQ: fmt.Sprintf(`INSERT INTO %s (id, scan_id, scanned_at, symbol, side, publish, soft_pass, weighted_score, confidence_index, calibrated_probability, trend_stage, entry_low, entry_high, stop_loss, take_profit_1, take_profit_2, reward_risk, reject_reasons, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ch.Table(TableDecisions)),
		br: br,
		l:  applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (s *CHDecisionStore) SetLogger(l *applogger.Logger) { s.l = nopIfNil(l) }

func (s *CHDecisionStore) Store(ctx context.Context, env *models.DecisionEnvelope) error {
	return s.StoreBatch(ctx, []*models.DecisionEnvelope{env})
}

func (s *CHDecisionStore) StoreBatch(ctx context.Context, envs []*models.DecisionEnvelope) error {
	rows := make([][]any, 0, len(envs))
	for _, env := range envs {
		if env == nil || env.Decision.Symbol == "" {
			continue
		}
		row, err := decisionRow(env)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	err := guard(s.br, func() error { return s.ch.InsertBatch(ctx, s.insertQ, rows) })
	if err != nil {
		s.l.Error("clickhouse store decisions failed", applogger.Int("rows", len(rows)), applogger.Error(err))
		return fmt.Errorf("store decisions: %w", err)
	}
	s.l.Debug("clickhouse store decisions ok",
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHDecisionStore) Health(ctx context.Context) error { return s.ch.Health(ctx) }

// Close is a no-op; the client is owned by the caller.
func (s *CHDecisionStore) Close() error { return nil }

func decisionRow(env *models.DecisionEnvelope) ([]any, error) {
	d := env.Decision
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal decision %s: %w", d.Symbol, err)
	}

	stage := ""
	if d.Timing != nil {
		stage = string(d.Timing.TrendStage)
	}
	var plan models.RiskPlan
	if d.RiskPlan != nil {
		plan = *d.RiskPlan
	}
	return []any{
		env.ID,
		env.ScanID,
		env.ScannedAt.UTC(),
		d.Symbol,
		string(d.Side),
		d.Publish,
		d.SoftPass,
		d.Composite.WeightedScore,
		d.Composite.ConfidenceIndex,
		d.Probability.CalibratedProbability,
		stage,
		plan.EntryLow,
		plan.EntryHigh,
		plan.StopLoss,
		plan.TakeProfit1,
		plan.TakeProfit2,
		plan.RewardRiskRatio,
		strings.Join(d.RejectReasons, ","),
		string(payload),
	}, nil
}

var _ domrepo.DecisionStore = (*CHDecisionStore)(nil)
