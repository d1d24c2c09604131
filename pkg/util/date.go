package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseWindow accepts anything time.ParseDuration does plus a whole-day
// suffix ("7d"). Windows must be positive.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty window")
	}
	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid window %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("invalid window %q: %w", s, err)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("window %q must be positive", s)
	}
	return d, nil
}

// BarDuration returns the width of a bar timeframe such as "15m", "1h" or
// "4h". Unknown values yield 0.
func BarDuration(tf string) time.Duration {
	switch tf {
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	default:
		return 0
	}
}

// LastClosedBar returns the open time of the most recent bar of width tf
// that has fully closed at now. Bars are aligned to UTC midnight.
func LastClosedBar(now time.Time, tf string) time.Time {
	d := BarDuration(tf)
	if d == 0 {
		return now.UTC().Truncate(time.Minute)
	}
	return now.UTC().Truncate(d).Add(-d)
}

// FundingInterval is the perpetual funding cadence. Settlements happen at
// 00:00, 08:00 and 16:00 UTC.
const FundingInterval = 8 * time.Hour

// InSettlementWindow reports whether t lies within window of a funding
// settlement on either side.
func InSettlementWindow(t time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	t = t.UTC()
	prev := t.Truncate(FundingInterval)
	next := prev.Add(FundingInterval)
	return t.Sub(prev) <= window || next.Sub(t) <= window
}
