package confidence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"CryptoSignal/internal/domain/models"
)

// Stats aggregates the event log. Results are cached per query for the
// configured TTL so frequent polling does not contend with scoring.
func (e *Evaluator) Stats(q models.StatsQuery) models.ConfidenceStats {
	key := fmt.Sprintf("stats|%s|%d|%d", q.Factor, q.Window, q.MinLevel)
	now := e.now()
	if v, ok := e.cache.get(key, now); ok {
		return v.(models.ConfidenceStats)
	}

	events := e.snapshot(filter(q, now))
	out := summarize(events)
	e.cache.set(key, out, now)
	return out
}

// AlertSummary lists factors whose recent grades are mostly bad. A factor is
// critical when its DISABLED share reaches CriticalRatio, otherwise warning
// when its non-NORMAL share reaches WarningRatio.
func (e *Evaluator) AlertSummary(window time.Duration) models.AlertSummary {
	key := fmt.Sprintf("alerts|%d", window)
	now := e.now()
	if v, ok := e.cache.get(key, now); ok {
		return v.(models.AlertSummary)
	}

	events := e.snapshot(filter(models.StatsQuery{Window: window}, now))
	type tally struct{ total, disabled, degraded int }
	byFactor := make(map[string]*tally)
	for _, ev := range events {
		t := byFactor[ev.Factor]
		if t == nil {
			t = &tally{}
			byFactor[ev.Factor] = t
		}
		t.total++
		if ev.Level == models.LevelDisabled {
			t.disabled++
		}
		if ev.Level != models.LevelNormal {
			t.degraded++
		}
	}

	out := models.AlertSummary{CriticalFactors: []string{}, WarningFactors: []string{}}
	for name, t := range byFactor {
		if t.total < e.cfg.MinEvents {
			continue
		}
		switch {
		case float64(t.disabled)/float64(t.total) >= e.cfg.CriticalRatio:
			out.CriticalFactors = append(out.CriticalFactors, name)
		case float64(t.degraded)/float64(t.total) >= e.cfg.WarningRatio:
			out.WarningFactors = append(out.WarningFactors, name)
		}
	}
	sort.Strings(out.CriticalFactors)
	sort.Strings(out.WarningFactors)

	e.cache.set(key, out, now)
	return out
}

func filter(q models.StatsQuery, now time.Time) func(models.ConfidenceEvent) bool {
	var since time.Time
	if q.Window > 0 {
		since = now.Add(-q.Window)
	}
	return func(ev models.ConfidenceEvent) bool {
		if q.Factor != "" && ev.Factor != q.Factor {
			return false
		}
		if ev.Level < q.MinLevel {
			return false
		}
		if !since.IsZero() && ev.Timestamp.Before(since) {
			return false
		}
		return true
	}
}

func summarize(events []models.ConfidenceEvent) models.ConfidenceStats {
	out := models.ConfidenceStats{
		ByLevel:  make(map[string]int, 4),
		ByFactor: make(map[string]models.FactorStats),
	}
	for _, lvl := range models.AllConfidenceLevels() {
		out.ByLevel[lvl.String()] = 0
	}

	sums := make(map[string]float64)
	var total float64
	for _, ev := range events {
		out.Total++
		total += ev.Confidence
		out.ByLevel[ev.Level.String()]++

		fs, ok := out.ByFactor[ev.Factor]
		if !ok {
			fs = models.FactorStats{ByLevel: make(map[string]int, 4)}
		}
		fs.Count++
		fs.ByLevel[ev.Level.String()]++
		out.ByFactor[ev.Factor] = fs
		sums[ev.Factor] += ev.Confidence
	}

	if out.Total > 0 {
		out.AvgConfidence = total / float64(out.Total)
	}
	for name, fs := range out.ByFactor {
		fs.AvgConfidence = sums[name] / float64(fs.Count)
		out.ByFactor[name] = fs
	}
	return out
}

type cached struct {
	v   any
	exp time.Time
}

// maxCachedQueries bounds the stats cache when callers send many distinct
// windows within one TTL.
const maxCachedQueries = 1024

// statsCache is keyed by query and guarded separately from the event log.
type statsCache struct {
	ttl time.Duration
	mu  sync.Mutex
	m   map[string]cached
}

func newStatsCache(ttl time.Duration) *statsCache {
	return &statsCache{ttl: ttl, m: make(map[string]cached)}
}

func (c *statsCache) get(key string, now time.Time) (any, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || !now.Before(e.exp) {
		delete(c.m, key)
		return nil, false
	}
	return e.v, true
}

func (c *statsCache) set(key string, v any, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; !ok && len(c.m) >= maxCachedQueries {
		c.evict(now)
	}
	c.m[key] = cached{v: v, exp: now.Add(c.ttl)}
}

// evict drops expired entries. If every entry is still live the cache is
// reset. Callers hold mu.
func (c *statsCache) evict(now time.Time) {
	for k, e := range c.m {
		if !now.Before(e.exp) {
			delete(c.m, k)
		}
	}
	if len(c.m) >= maxCachedQueries {
		clear(c.m)
	}
}

func (c *statsCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
