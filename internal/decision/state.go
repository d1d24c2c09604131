// Package decision implements the four sequential decision stages and the
// state machine that links them. A rejected asset can never reach a later
// stage: every stage takes the concrete in-progress state of the previous one.
package decision

import "CryptoSignal/internal/domain/models"

// State is the progress of one asset through the pipeline.
type State interface {
	isState()
}

// Directed is the in-progress state after Stage 1.
type Directed struct {
	Direction models.DirectionResult
}

// Timed is the in-progress state after Stage 2.
type Timed struct {
	Directed
	Timing models.TimingResult
}

// Priced is the in-progress state after Stage 3.
type Priced struct {
	Timed
	Plan models.RiskPlan
}

// Rejected is terminal.
type Rejected struct {
	Stage     int
	Direction models.DirectionResult
	Reasons   []string
}

func (Directed) isState() {}
func (Timed) isState()    {}
func (Priced) isState()   {}
func (Rejected) isState() {}

// Side is the direction committed to in Stage 1.
func (d Directed) Side() models.Side { return d.Direction.Side }

// Strength is the timing-adjusted strength, signed by side.
func (t Timed) Strength() float64 {
	return t.Side().Sign() * t.Timing.EnhancedStrength
}

// Verdict is the outcome of Stage 4.
type Verdict struct {
	Gates         []models.GateResult
	Publish       bool
	SoftPass      bool
	RejectReasons []string
	Annotations   []string
}
