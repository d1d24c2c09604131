package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))

	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok = ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"90s", 90 * time.Second, false},
		{"1h", time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"", 0, true},
		{"0s", 0, true},
		{"-1h", 0, true},
		{"xd", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindow(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLastClosedBar(t *testing.T) {
	now := time.Date(2025, 3, 1, 13, 47, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 13, 30, 0, 0, time.UTC), LastClosedBar(now, "15m"))
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), LastClosedBar(now, "1h"))
	assert.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), LastClosedBar(now, "4h"))
	assert.Equal(t, time.Date(2025, 3, 1, 13, 47, 0, 0, time.UTC), LastClosedBar(now, "1w"))
}

func TestInSettlementWindow(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2025, 3, 1, h, m, 0, 0, time.UTC) }

	assert.True(t, InSettlementWindow(at(7, 45), 30*time.Minute))
	assert.True(t, InSettlementWindow(at(16, 10), 30*time.Minute))
	assert.True(t, InSettlementWindow(at(23, 50), 30*time.Minute))
	assert.False(t, InSettlementWindow(at(12, 0), 30*time.Minute))
	assert.False(t, InSettlementWindow(at(8, 0), 0))
}
