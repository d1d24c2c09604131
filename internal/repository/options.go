package repository

import (
	"CryptoSignal/pkg/breaker"
	applogger "CryptoSignal/pkg/logger"
)

// guard runs fn through b when one is configured.
func guard(b *breaker.Breaker, fn func() error) error {
	if b == nil {
		return fn()
	}
	return b.Do(fn)
}

func nopIfNil(l *applogger.Logger) *applogger.Logger {
	if l == nil {
		return applogger.Nop()
	}
	return l
}
