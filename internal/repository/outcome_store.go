package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CryptoSignal/internal/domain/models"
	domrepo "CryptoSignal/internal/domain/repository"
	"CryptoSignal/pkg/breaker"
	pkgch "CryptoSignal/pkg/clickhouse"
)

// CHOutcomeStore keeps realized decision outcomes.
type CHOutcomeStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	br    *breaker.Breaker
}

func NewCHOutcomeStore(ch *pkgch.Client, br *breaker.Breaker) *CHOutcomeStore {
	return &CHOutcomeStore{ch: ch, db: ch.DB(), table: ch.Table(TableOutcomes), br: br}
}

func (s *CHOutcomeStore) StoreOutcome(ctx context.Context, o *models.OutcomeSample) error {
	if o == nil {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (decision_id, symbol, side, score, win, closed_at) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	err := guard(s.br, func() error {
		_, err := s.db.ExecContext(ctx, q, o.DecisionID, o.Symbol, string(o.Side), o.Score, o.Win, o.ClosedAt.UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("store outcome %s: %w", o.Symbol, err)
	}
	return nil
}

// RecentOutcomes returns at most limit outcomes closed at or after since,
// newest first.
func (s *CHOutcomeStore) RecentOutcomes(ctx context.Context, since time.Time, limit int) ([]models.OutcomeSample, error) {
	q := fmt.Sprintf(`SELECT decision_id, symbol, side, score, win, closed_at
FROM %s
WHERE closed_at >= ?
ORDER BY closed_at DESC
LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.OutcomeSample
	for rows.Next() {
		var (
			o    models.OutcomeSample
			side string
		)
		if err := rows.Scan(&o.DecisionID, &o.Symbol, &side, &o.Score, &o.Win, &o.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Side = models.Side(side)
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ domrepo.OutcomeStore = (*CHOutcomeStore)(nil)
