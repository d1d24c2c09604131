package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"CryptoSignal/internal/middleware"
	"CryptoSignal/internal/service/ratelimit"
	"CryptoSignal/internal/usecase"
	pkgch "CryptoSignal/pkg/clickhouse"
	"CryptoSignal/pkg/config"
	xhttp "CryptoSignal/pkg/http"
	pkgkafka "CryptoSignal/pkg/kafka"
	applogger "CryptoSignal/pkg/logger"
)

// Components are the long-lived parts the App starts and stops. Optional
// ones are nil when disabled in configuration.
type Components struct {
	Logger     *applogger.Logger
	Scanner    *usecase.Scanner
	Dispatcher *usecase.DecisionDispatcher
	Pipelines  []*middleware.PublishPipeline
	Refresher  *usecase.CalibrationRefresher
	Consumer   *pkgkafka.Consumer
	Outcomes   *usecase.OutcomeHandler
	HTTP       *xhttp.Server
	Limiter    *ratelimit.Limiter
	ClickHouse *pkgch.Client
	// Closers run last, in order; e.g. the Redis client.
	Closers []func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	c   Components
	l   *applogger.Logger
	wg  sync.WaitGroup
}

func New(cfg *config.Config, c Components) *App {
	l := c.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, c: c, l: l}
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with caller-controlled cancellation.
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, p := range a.c.Pipelines {
		p.Start(ctx)
	}

	if a.c.Consumer != nil && a.c.Outcomes != nil {
		a.c.Consumer.SetLogger(a.l.With("kafka-consumer"))
		a.c.Consumer.WithConsumerHook(a.c.Outcomes.ErrorHook())
		a.c.Consumer.RegisterHandler(a.c.Outcomes)
		if err := a.c.Consumer.Start(); err != nil {
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.c.Outcomes.Topic()))
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			return a.shutdown(err)
		}
	}

	if a.c.Refresher != nil {
		a.every(ctx, a.cfg.Calibration.RefreshInterval, "calibration", func(ctx context.Context) {
			if _, err := a.c.Refresher.Refresh(ctx); err != nil {
				a.l.Error("calibration refresh failed", applogger.Error(err))
			}
		})
	}
	if a.c.Limiter != nil {
		a.every(ctx, time.Minute, "", func(context.Context) { a.c.Limiter.Sweep() })
	}
	a.every(ctx, a.cfg.Scan.Interval, "scan", func(ctx context.Context) {
		if _, err := a.c.Scanner.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.l.Warn("scan incomplete", applogger.Error(err))
		}
	})
	a.l.Info("scanner started",
		applogger.Strings("symbols", a.c.Scanner.Symbols()),
		applogger.Duration("interval", a.cfg.Scan.Interval),
	)

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(nil)
}

// every runs fn now and then on each tick until ctx ends. Runs never
// overlap. An empty name skips the immediate run.
func (a *App) every(ctx context.Context, d time.Duration, name string, fn func(context.Context)) {
	if d <= 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if name != "" {
			fn(ctx)
		}
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn(ctx)
			}
		}
	}()
}

// shutdown gracefully stops all services. cause is returned unchanged.
func (a *App) shutdown(cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.wg.Wait()

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	// flush aggregated errors while the producer is still open
	a.l.RemoveCollector()
	// closes every pipeline and, through them, the producer and store
	if a.c.Dispatcher != nil {
		if err := a.c.Dispatcher.Close(); err != nil {
			a.l.Warn("dispatcher close error", applogger.Error(err))
		}
	}
	for _, closeFn := range a.c.Closers {
		if err := closeFn(); err != nil {
			a.l.Warn("close error", applogger.Error(err))
		}
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return cause
}
