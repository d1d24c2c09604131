// Package breaker wraps sony/gobreaker for sinks that may be down for a
// while (Kafka, ClickHouse, Redis).
package breaker

import (
	"context"
	"errors"
	"time"

	cb "github.com/sony/gobreaker"
)

// ErrOpen is returned without calling the sink while the breaker is open.
var ErrOpen = errors.New("circuit open")

type Settings struct {
	MaxFailures uint32        // consecutive failures that trip the breaker
	OpenTimeout time.Duration // time in open state before a trial call
	Interval    time.Duration // closed-state counter reset period
	OnChange    func(name, from, to string)
}

type Breaker struct {
	cb *cb.CircuitBreaker
}

func New(name string, s Settings) *Breaker {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	st := cb.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		// a cancelled caller says nothing about the sink
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if s.OnChange != nil {
		st.OnStateChange = func(name string, from, to cb.State) {
			s.OnChange(name, from.String(), to.String())
		}
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Do runs fn through the breaker. Open and half-open rejections map to
// ErrOpen.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State is "closed", "half-open" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Name() string { return b.cb.Name() }
