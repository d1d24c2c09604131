package http

import (
	"time"

	xutil "CryptoSignal/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// ParseWindow parses a look-back window such as "90s", "1h" or "7d".
func ParseWindow(s string) (time.Duration, error) { return xutil.ParseWindow(s) }
