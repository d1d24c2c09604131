// Package calibration corrects raw scores into empirically realized win
// probabilities using a monotone piecewise table.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"CryptoSignal/internal/domain/models"
)

// Domain names what a table's bins are expressed in.
type Domain string

const (
	DomainScore       Domain = "score"
	DomainProbability Domain = "probability"
)

var ErrCalibrationUnavailable = errors.New("calibration unavailable")

// Table is an immutable, validated calibration table. Win rates are
// non-decreasing across bins.
type Table struct {
	domain Domain
	bins   []models.CalibrationBin
	minWR  float64
	maxWR  float64
}

// NewTable validates bins and enforces monotone win rates with
// pool-adjacent-violators. An empty bin list yields an empty table, which
// always falls back.
func NewTable(domain Domain, bins []models.CalibrationBin) (*Table, error) {
	if domain == "" {
		domain = DomainScore
	}
	if domain != DomainScore && domain != DomainProbability {
		return nil, fmt.Errorf("calibration: unknown domain %q", domain)
	}
	lo, hi := domainBounds(domain)

	bs := make([]models.CalibrationBin, len(bins))
	copy(bs, bins)
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].Center < bs[j].Center })

	for i, b := range bs {
		if !finite(b.Lo, b.Hi, b.Center, b.WinRate) {
			return nil, fmt.Errorf("calibration: bin %d has non-finite values", b.ID)
		}
		if b.Lo > b.Center || b.Center > b.Hi {
			return nil, fmt.Errorf("calibration: bin %d must satisfy lo <= center <= hi", b.ID)
		}
		if b.Lo < lo || b.Hi > hi {
			return nil, fmt.Errorf("calibration: bin %d outside %s domain [%v, %v]", b.ID, domain, lo, hi)
		}
		if b.WinRate < 0 || b.WinRate > 1 {
			return nil, fmt.Errorf("calibration: bin %d win rate %v outside [0,1]", b.ID, b.WinRate)
		}
		if b.Count < 0 {
			return nil, fmt.Errorf("calibration: bin %d has negative count", b.ID)
		}
		if i > 0 {
			prev := bs[i-1]
			if b.Center == prev.Center {
				return nil, fmt.Errorf("calibration: bins %d and %d share a center", prev.ID, b.ID)
			}
			if b.Lo < prev.Hi {
				return nil, fmt.Errorf("calibration: bins %d and %d overlap", prev.ID, b.ID)
			}
		}
	}

	rates := make([]float64, len(bs))
	weights := make([]float64, len(bs))
	for i, b := range bs {
		rates[i] = b.WinRate
		weights[i] = math.Max(1, float64(b.Count))
	}
	rates = pav(rates, weights)

	t := &Table{domain: domain, bins: bs}
	for i := range t.bins {
		t.bins[i].WinRate = rates[i]
	}
	if len(bs) > 0 {
		t.minWR, t.maxWR = rates[0], rates[len(rates)-1]
	}
	return t, nil
}

// Domain returns the table's input domain.
func (t *Table) Domain() Domain { return t.domain }

// Bins returns a copy of the table bins.
func (t *Table) Bins() []models.CalibrationBin {
	out := make([]models.CalibrationBin, len(t.bins))
	copy(out, t.bins)
	return out
}

// Empty reports whether the table has no bins.
func (t *Table) Empty() bool { return t == nil || len(t.bins) == 0 }

// Info describes the table for diagnostics.
func (t *Table) Info() models.CalibrationInfo {
	info := models.CalibrationInfo{Bins: []models.CalibrationBin{}}
	if t == nil {
		return info
	}
	info.Domain = string(t.domain)
	info.Bins = t.Bins()
	info.MinWinRate = t.minWR
	info.MaxWinRate = t.maxWR
	for _, b := range t.bins {
		info.Samples += b.Count
	}
	return info
}

// pav is weighted pool-adjacent-violators for a non-decreasing fit.
func pav(y, w []float64) []float64 {
	type block struct {
		sum, weight float64
		n           int
	}
	blocks := make([]block, 0, len(y))
	for i := range y {
		blocks = append(blocks, block{sum: y[i] * w[i], weight: w[i], n: 1})
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.sum/prev.weight <= last.sum/last.weight {
				break
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, block{sum: prev.sum + last.sum, weight: prev.weight + last.weight, n: prev.n + last.n})
		}
	}
	out := make([]float64, 0, len(y))
	for _, b := range blocks {
		v := b.sum / b.weight
		for k := 0; k < b.n; k++ {
			out = append(out, v)
		}
	}
	return out
}

func domainBounds(d Domain) (float64, float64) {
	if d == DomainProbability {
		return 0, 1
	}
	return -100, 100
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
