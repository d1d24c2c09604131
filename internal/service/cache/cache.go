package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/util"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DecisionCache keeps the latest decision envelope per symbol.
type DecisionCache struct {
	store BytesCache
	ttl   time.Duration
}

func NewDecisionCache(store BytesCache, ttl time.Duration) *DecisionCache {
	return &DecisionCache{store: store, ttl: ttl}
}

func decisionKey(symbol string) string { return "decision:" + util.NormalizeSymbol(symbol) }

// Put overwrites the symbol's entry.
func (c *DecisionCache) Put(ctx context.Context, env *models.DecisionEnvelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal decision envelope: %w", err)
	}
	if err := c.store.SetBytes(ctx, decisionKey(env.Decision.Symbol), b, c.ttl); err != nil {
		return fmt.Errorf("cache decision %s: %w", env.Decision.Symbol, err)
	}
	return nil
}

// Latest returns ok=false when nothing is cached or the entry expired.
func (c *DecisionCache) Latest(ctx context.Context, symbol string) (*models.DecisionEnvelope, bool, error) {
	b, ok, err := c.store.GetBytes(ctx, decisionKey(symbol))
	if err != nil || !ok {
		return nil, false, err
	}
	var env models.DecisionEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, false, fmt.Errorf("decode cached decision %s: %w", symbol, err)
	}
	return &env, true, nil
}
