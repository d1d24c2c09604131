package calibration

import (
	"math"
	"sort"
	"sync"

	"CryptoSignal/internal/domain/models"
	domsvc "CryptoSignal/internal/domain/service"
)

// Calibrator applies the current table. The table can be replaced at any
// time with Swap; readers never block on a refit.
type Calibrator struct {
	mu    sync.RWMutex
	table *Table
}

func NewCalibrator(t *Table) *Calibrator {
	return &Calibrator{table: t}
}

// Swap installs a new table and returns the previous one.
func (c *Calibrator) Swap(t *Table) *Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.table
	c.table = t
	return old
}

// Table returns the table in use.
func (c *Calibrator) Table() *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table
}

// Info describes the current table.
func (c *Calibrator) Info() models.CalibrationInfo {
	return c.Table().Info()
}

// Calibrate maps a score (or probability, depending on the table's domain)
// onto a realized win probability. It never fails: with no table, or with
// an input outside the table's support, the raw probability is returned
// with Fallback set and BinID -1.
func (c *Calibrator) Calibrate(x float64) models.CalibratedProbability {
	t := c.Table()
	return t.Calibrate(x)
}

// Calibrate is the table-level mapping used by Calibrator.
func (t *Table) Calibrate(x float64) models.CalibratedProbability {
	domain := DomainScore
	if t != nil {
		domain = t.domain
	}
	raw := rawProbability(domain, x)
	fallback := models.CalibratedProbability{RawProbability: raw, CalibratedProbability: raw, BinID: -1, Fallback: true}

	if t.Empty() || math.IsNaN(x) {
		return fallback
	}
	bins := t.bins
	if x < bins[0].Lo || x > bins[len(bins)-1].Hi {
		return fallback
	}

	var p float64
	switch {
	case x <= bins[0].Center:
		p = bins[0].WinRate
	case x >= bins[len(bins)-1].Center:
		p = bins[len(bins)-1].WinRate
	default:
		// first bin whose center is above x; x lies between i-1 and i
		i := sort.Search(len(bins), func(k int) bool { return bins[k].Center > x })
		a, b := bins[i-1], bins[i]
		frac := (x - a.Center) / (b.Center - a.Center)
		p = a.WinRate + frac*(b.WinRate-a.WinRate)
	}
	p = math.Max(t.minWR, math.Min(t.maxWR, p))

	return models.CalibratedProbability{
		RawProbability:        raw,
		CalibratedProbability: p,
		BinID:                 t.binFor(x),
	}
}

// binFor returns the id of the bin containing x, or of the nearest center
// when x falls in a gap between bins.
func (t *Table) binFor(x float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, b := range t.bins {
		if x >= b.Lo && x <= b.Hi {
			return b.ID
		}
		if d := math.Abs(x - b.Center); d < bestDist {
			best, bestDist = i, d
		}
	}
	return t.bins[best].ID
}

func rawProbability(domain Domain, x float64) float64 {
	if math.IsNaN(x) {
		return 0.5
	}
	p := x
	if domain == DomainScore {
		p = (x + 100) / 200
	}
	return math.Max(0, math.Min(1, p))
}

var _ domsvc.CalibrationView = (*Calibrator)(nil)
