package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"CryptoSignal/internal/domain/models"
	drepo "CryptoSignal/internal/domain/repository"
	domsvc "CryptoSignal/internal/domain/service"
	scanmetrics "CryptoSignal/internal/service/metrics"
	"CryptoSignal/pkg/logger"

	"github.com/google/uuid"
)

// ReasonInternalError rejects an asset whose evaluation panicked.
const ReasonInternalError = "internal_error"

// defaultPublishTimeout bounds caching and dispatch when no scan timeout is
// configured.
const defaultPublishTimeout = 30 * time.Second

// Dispatcher hands a scan's envelopes to the sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, envs []*models.DecisionEnvelope) error
}

// DecisionCacher remembers the latest envelope per symbol.
type DecisionCacher interface {
	Put(ctx context.Context, env *models.DecisionEnvelope) error
}

// ScanResult summarizes one scan cycle. Envelopes follow symbol order and
// omit symbols whose snapshot could not be read.
type ScanResult struct {
	ScanID    string                     `json:"scan_id"`
	StartedAt time.Time                  `json:"started_at"`
	Duration  time.Duration              `json:"duration"`
	Envelopes []*models.DecisionEnvelope `json:"envelopes"`
	Published int                        `json:"published"`
	Rejected  int                        `json:"rejected"`
	Failed    map[string]string          `json:"failed,omitempty"`
}

// Scanner runs the scoring core over every configured symbol with a fixed
// worker pool.
type Scanner struct {
	source     drepo.SnapshotSource
	engine     domsvc.DecisionEngine
	dispatcher Dispatcher
	cache      DecisionCacher
	metrics    drepo.Metrics
	symbols    []string
	workers    int
	timeout    time.Duration
	l          *logger.Logger
	now        func() time.Time
	newID      func() string
}

type ScannerOption func(*Scanner)

func WithDispatcher(d Dispatcher) ScannerOption { return func(s *Scanner) { s.dispatcher = d } }

func WithCache(c DecisionCacher) ScannerOption { return func(s *Scanner) { s.cache = c } }

func WithWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithScanTimeout bounds a whole ScanOnce call.
func WithScanTimeout(d time.Duration) ScannerOption { return func(s *Scanner) { s.timeout = d } }

func WithScannerLogger(l *logger.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.l = l
		}
	}
}

// WithIDs replaces the clock and id generator; tests use it for stable
// envelopes.
func WithIDs(now func() time.Time, newID func() string) ScannerOption {
	return func(s *Scanner) {
		s.now = now
		s.newID = newID
	}
}

func NewScanner(source drepo.SnapshotSource, engine domsvc.DecisionEngine, metrics drepo.Metrics, symbols []string, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		source:  source,
		engine:  engine,
		metrics: metrics,
		symbols: symbols,
		workers: 8,
		l:       logger.Nop(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Symbols returns the configured universe.
func (s *Scanner) Symbols() []string { return s.symbols }

// Evaluate scores snapshots concurrently and returns decisions in input
// order. A panicking asset yields a rejected decision.
func (s *Scanner) Evaluate(ctx context.Context, snaps []*models.AssetSnapshot) []models.Decision {
	out := make([]models.Decision, len(snaps))
	s.fanOut(ctx, len(snaps), func(i int) {
		out[i] = s.evaluateOne(snaps[i])
	})
	return out
}

// ScanOnce reads a snapshot per symbol, scores it, then caches and
// dispatches the envelopes. Sink failures are logged and do not fail the
// scan. Caching and dispatch run on their own deadline so a scan cut short
// still publishes what it scored.
func (s *Scanner) ScanOnce(parent context.Context) (*ScanResult, error) {
	ctx := parent
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res := &ScanResult{ScanID: s.newID(), StartedAt: s.now().UTC()}

	slots := make([]*models.DecisionEnvelope, len(s.symbols))
	var (
		mu     sync.Mutex
		failed = map[string]string{}
	)
	s.fanOut(ctx, len(s.symbols), func(i int) {
		sym := s.symbols[i]
		snap, err := s.source.LatestSnapshot(ctx, sym)
		if err != nil {
			s.metrics.RecordError("snapshot")
			s.l.Warn("snapshot unavailable", logger.String("symbol", sym), logger.Error(err))
			mu.Lock()
			failed[sym] = err.Error()
			mu.Unlock()
			return
		}
		d := s.evaluateOne(snap)
		slots[i] = &models.DecisionEnvelope{ID: s.newID(), ScanID: res.ScanID, ScannedAt: res.StartedAt, Decision: d}
	})

	if err := ctx.Err(); err != nil {
		for i, env := range slots {
			if _, seen := failed[s.symbols[i]]; env == nil && !seen {
				failed[s.symbols[i]] = err.Error()
			}
		}
	}
	for _, env := range slots {
		if env == nil {
			continue
		}
		res.Envelopes = append(res.Envelopes, env)
		s.record(env.Decision)
		if env.Decision.Publish {
			res.Published++
		} else {
			res.Rejected++
		}
	}
	if len(failed) > 0 {
		res.Failed = failed
	}

	publishTimeout := s.timeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	pubCtx, cancelPub := context.WithTimeout(context.WithoutCancel(parent), publishTimeout)
	defer cancelPub()

	if s.cache != nil {
		for _, env := range res.Envelopes {
			if err := s.cache.Put(pubCtx, env); err != nil {
				s.metrics.RecordError("cache")
				s.l.Warn("cache decision failed", logger.String("symbol", env.Decision.Symbol), logger.Error(err))
			}
		}
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(pubCtx, res.Envelopes); err != nil {
			s.l.Error("dispatch decisions failed", logger.String("scan_id", res.ScanID), logger.Error(err))
		}
	}

	res.Duration = time.Since(start)
	s.metrics.RecordLatency("scan", res.Duration.Seconds())
	scanmetrics.ObserveScan(res.Duration.Seconds(), res.Published, res.Rejected, len(failed))
	s.l.Info("scan complete",
		logger.String("scan_id", res.ScanID),
		logger.Int("assets", len(s.symbols)),
		logger.Int("published", res.Published),
		logger.Int("rejected", res.Rejected),
		logger.Int("failed", len(failed)),
		logger.Duration("duration_ms", res.Duration),
	)
	return res, ctx.Err()
}

// fanOut runs fn for indices [0,n) on the worker pool. Cancelling ctx stops
// handing out new indices; running calls finish.
func (s *Scanner) fanOut(ctx context.Context, n int, fn func(i int)) {
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(s.workers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *Scanner) evaluateOne(snap *models.AssetSnapshot) (d models.Decision) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("evaluate_panic")
			s.l.Error("evaluate panic",
				logger.String("symbol", snap.Symbol),
				logger.Error(fmt.Errorf("%v", r)),
				logger.String("stack", string(debug.Stack())),
			)
			d = models.Decision{
				Symbol:        snap.Symbol,
				Side:          models.SideNone,
				Gates:         []models.GateResult{},
				RejectReasons: []string{ReasonInternalError},
			}
		}
	}()

	d = s.engine.EvaluateSnapshot(snap)
	s.metrics.RecordLatency("evaluate", time.Since(start).Seconds())
	if s.l.DebugEnabled() {
		s.l.Debug("asset evaluated",
			logger.String("symbol", d.Symbol),
			logger.String("side", string(d.Side)),
			logger.Bool("publish", d.Publish),
			logger.Float("score", d.Composite.WeightedScore),
			logger.String("reasons", strings.Join(d.RejectReasons, ",")),
		)
	}
	return d
}

func (s *Scanner) record(d models.Decision) {
	s.metrics.RecordDecision(string(d.Side), d.Publish)
	for _, g := range d.Gates {
		if !g.Passed {
			s.metrics.RecordGateFailure(g.Name)
		}
	}
}
