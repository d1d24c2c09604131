// Package confidence grades how much real data backs each factor and keeps a
// bounded log of those grades for monitoring.
package confidence

import (
	"sync"
	"time"

	"CryptoSignal/internal/domain/models"
	domsvc "CryptoSignal/internal/domain/service"
)

const (
	warningRatio  = 0.75
	degradedRatio = 0.50

	DefaultCapacity = 10000
	DefaultStatsTTL = 60 * time.Second
)

// Config tunes the monitoring side of the evaluator.
type Config struct {
	Capacity      int           `yaml:"capacity" json:"capacity" default:"10000" validate:"gte=2"`
	StatsTTL      time.Duration `yaml:"stats_ttl" json:"stats_ttl" default:"60s" validate:"gte=0"`
	CriticalRatio float64       `yaml:"critical_ratio" json:"critical_ratio" default:"0.5" validate:"gt=0,lte=1"`
	WarningRatio  float64       `yaml:"warning_ratio" json:"warning_ratio" default:"0.3" validate:"gt=0,lte=1"`
	MinEvents     int           `yaml:"min_events" json:"min_events" default:"1" validate:"gte=1"`
}

// DefaultConfig returns the monitoring defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:      DefaultCapacity,
		StatsTTL:      DefaultStatsTTL,
		CriticalRatio: 0.5,
		WarningRatio:  0.3,
		MinEvents:     1,
	}
}

// LevelRecorder receives every assessment, typically a metrics sink.
type LevelRecorder interface {
	RecordConfidenceLevel(factor, level string)
}

// Assessment is the evaluator's verdict for one factor.
type Assessment struct {
	Level         models.ConfidenceLevel
	Confidence    float64
	AdjustedScore float64
}

// Assess maps actual/required onto a level and a confidence multiplier.
// required <= 0 means the factor needs no history and is fully backed.
func Assess(actual, required int) (models.ConfidenceLevel, float64) {
	if required <= 0 {
		return models.LevelNormal, 1
	}
	if actual < 0 {
		actual = 0
	}
	ratio := float64(actual) / float64(required)
	switch {
	case ratio >= 1:
		return models.LevelNormal, 1
	case ratio >= warningRatio:
		return models.LevelWarning, ratio
	case ratio >= degradedRatio:
		return models.LevelDegraded, ratio
	default:
		return models.LevelDisabled, 0
	}
}

// Evaluator grades factors and records each grade. Safe for concurrent use.
type Evaluator struct {
	cfg      Config
	now      func() time.Time
	recorder LevelRecorder

	mu     sync.Mutex
	events []models.ConfidenceEvent

	cache *statsCache
}

type Option func(*Evaluator)

// WithClock injects the time source used for event timestamps and windows.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRecorder reports each assessment to r.
func WithRecorder(r LevelRecorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

func NewEvaluator(cfg Config, opts ...Option) *Evaluator {
	if cfg.Capacity < 2 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MinEvents < 1 {
		cfg.MinEvents = 1
	}
	e := &Evaluator{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.events = make([]models.ConfidenceEvent, 0, min(cfg.Capacity, 1024))
	e.cache = newStatsCache(cfg.StatsTTL)
	return e
}

// Evaluate grades one factor and discounts its raw score. A DISABLED factor
// always gets an adjusted score of exactly zero.
func (e *Evaluator) Evaluate(factor string, rawScore float64, actual, required int) Assessment {
	level, conf := Assess(actual, required)
	adjusted := rawScore * conf
	if level == models.LevelDisabled {
		adjusted = 0
	}

	e.append(models.ConfidenceEvent{
		Timestamp:  e.now(),
		Factor:     factor,
		Level:      level,
		Confidence: conf,
	})
	if e.recorder != nil {
		e.recorder.RecordConfidenceLevel(factor, level.String())
	}

	return Assessment{Level: level, Confidence: conf, AdjustedScore: adjusted}
}

func (e *Evaluator) append(ev models.ConfidenceEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) >= e.cfg.Capacity {
		// drop the oldest half
		keep := e.events[len(e.events)-e.cfg.Capacity/2:]
		n := copy(e.events, keep)
		e.events = e.events[:n]
	}
	e.events = append(e.events, ev)
}

// Len returns the number of retained events.
func (e *Evaluator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

// snapshot copies the events accepted by keep while holding the lock.
func (e *Evaluator) snapshot(keep func(models.ConfidenceEvent) bool) []models.ConfidenceEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ConfidenceEvent, 0, len(e.events))
	for _, ev := range e.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

var _ domsvc.ConfidenceMonitor = (*Evaluator)(nil)
