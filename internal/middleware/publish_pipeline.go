package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CryptoSignal/internal/domain/models"
	domrepo "CryptoSignal/internal/domain/repository"

	"golang.org/x/time/rate"
)

// Downstream is the sink a pipeline protects.
type Downstream interface {
	Name() string
	Send(ctx context.Context, envs []*models.DecisionEnvelope) error
}

// PublishPipeline sits between the dispatcher and one sink. It validates,
// throttles to maxRPS envelopes per second, and buffers envelopes when the
// sink is unavailable so a background loop can retry them.
type PublishPipeline struct {
	next      Downstream
	metrics   domrepo.Metrics
	limiter   *rate.Limiter
	batchSize int
	batchTO   time.Duration
	bufCh     chan *models.DecisionEnvelope
	stopCh    chan struct{}
	done      chan struct{}
	mu        sync.Mutex
	started   bool
	minBO     time.Duration
	maxBO     time.Duration
}

type PipelineOption func(*PublishPipeline)

// WithMaxRPS caps envelopes per second sent downstream. 0 disables it.
func WithMaxRPS(n int) PipelineOption {
	return func(p *PublishPipeline) {
		if n > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(n), n)
		} else {
			p.limiter = nil
		}
	}
}

// WithBufferSize sets how many envelopes are held while downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *PublishPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.DecisionEnvelope, n)
		}
	}
}

// WithBatch sets the retry batch size and how long the retry loop waits to
// fill one.
func WithBatch(size int, timeout time.Duration) PipelineOption {
	return func(p *PublishPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if timeout > 0 {
			p.batchTO = timeout
		}
	}
}

// WithRetryBackoff bounds the delay after a failed retry.
func WithRetryBackoff(lo, hi time.Duration) PipelineOption {
	return func(p *PublishPipeline) {
		if lo > 0 {
			p.minBO = lo
		}
		if hi >= p.minBO {
			p.maxBO = hi
		}
	}
}

func NewPublishPipeline(next Downstream, metrics domrepo.Metrics, opts ...PipelineOption) *PublishPipeline {
	p := &PublishPipeline{
		next:      next,
		metrics:   metrics,
		limiter:   rate.NewLimiter(50, 50),
		batchSize: 50,
		batchTO:   2 * time.Second,
		bufCh:     make(chan *models.DecisionEnvelope, 1000),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		minBO:     50 * time.Millisecond,
		maxBO:     2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PublishPipeline) Name() string { return p.next.Name() }

// Pending is the number of buffered envelopes awaiting retry.
func (p *PublishPipeline) Pending() int { return len(p.bufCh) }

// Send forwards envs in chunks. Chunks the sink rejects are buffered and
// the first error is returned.
func (p *PublishPipeline) Send(ctx context.Context, envs []*models.DecisionEnvelope) error {
	valid := make([]*models.DecisionEnvelope, 0, len(envs))
	for _, env := range envs {
		if err := validateEnvelope(env); err != nil {
			p.metrics.RecordError("pipeline_validate")
			continue
		}
		valid = append(valid, env)
	}

	var firstErr error
	for start := 0; start < len(valid); start += p.batchSize {
		end := min(start+p.batchSize, len(valid))
		chunk := valid[start:end]
		if err := p.wait(ctx, len(chunk)); err != nil {
			p.buffer(valid[start:])
			return fmt.Errorf("pipeline %s: %w", p.Name(), err)
		}
		t0 := time.Now()
		if err := p.next.Send(ctx, chunk); err != nil {
			p.metrics.RecordError("pipeline_" + p.Name())
			p.buffer(chunk)
			if firstErr == nil {
				firstErr = fmt.Errorf("pipeline %s: %w", p.Name(), err)
			}
			continue
		}
		p.metrics.RecordLatency("pipeline_"+p.Name(), time.Since(t0).Seconds())
	}
	return firstErr
}

func (p *PublishPipeline) wait(ctx context.Context, n int) error {
	if p.limiter == nil {
		return nil
	}
	// WaitN refuses n above the burst
	for n > 0 {
		k := min(n, p.limiter.Burst())
		if err := p.limiter.WaitN(ctx, k); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

func (p *PublishPipeline) buffer(envs []*models.DecisionEnvelope) {
	for _, env := range envs {
		select {
		case p.bufCh <- env:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
	}
}

// Start launches the retry loop.
func (p *PublishPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.retryLoop(ctx)
}

func (p *PublishPipeline) retryLoop(ctx context.Context) {
	defer close(p.done)
	backoff := p.minBO
	for {
		batch, ok := p.collect(ctx)
		if !ok {
			return
		}
		if len(batch) == 0 {
			continue
		}
		if err := p.next.Send(ctx, batch); err != nil {
			p.metrics.RecordError("pipeline_retry_" + p.Name())
			p.buffer(batch)
			backoff = min(backoff*2, p.maxBO)
			select {
			case <-time.After(backoff):
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = p.minBO
		for _, env := range batch {
			p.metrics.RecordMessageSent(p.Name(), env.Decision.Symbol)
		}
	}
}

// collect blocks for the first buffered envelope then gathers more until
// the batch is full or batchTO elapses.
func (p *PublishPipeline) collect(ctx context.Context) ([]*models.DecisionEnvelope, bool) {
	var batch []*models.DecisionEnvelope
	select {
	case env := <-p.bufCh:
		batch = append(batch, env)
	case <-p.stopCh:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}

	timer := time.NewTimer(p.batchTO)
	defer timer.Stop()
	for len(batch) < p.batchSize {
		select {
		case env := <-p.bufCh:
			batch = append(batch, env)
		case <-timer.C:
			return batch, true
		case <-p.stopCh:
			p.buffer(batch)
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
	return batch, true
}

// Stop ends the retry loop. Envelopes still buffered are dropped and
// counted.
func (p *PublishPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
	for i := len(p.bufCh); i > 0; i-- {
		p.metrics.RecordError("pipeline_dropped_on_stop")
	}
}

// Close stops the pipeline and closes the sink when it can be closed.
func (p *PublishPipeline) Close() error {
	p.Stop()
	if c, ok := p.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func validateEnvelope(env *models.DecisionEnvelope) error {
	if env == nil {
		return errors.New("envelope nil")
	}
	if env.ID == "" {
		return errors.New("envelope id empty")
	}
	if env.Decision.Symbol == "" {
		return errors.New("symbol empty")
	}
	return nil
}
