package decision

import "errors"

// Config groups the settings of all four stages.
type Config struct {
	Direction DirectionConfig `yaml:"direction"`
	Timing    TimingConfig    `yaml:"timing"`
	Risk      RiskConfig      `yaml:"risk"`
	Quality   QualityConfig   `yaml:"quality"`
}

// DefaultConfig mirrors the default tags of the stage configs.
func DefaultConfig() Config {
	return Config{
		Direction: DirectionConfig{
			TrendWeight:     0.5,
			MomentumWeight:  0.3,
			AlignmentWeight: 0.2,
			AlignmentBonus:  10,
			MinQuoteVolume:  1_000_000,
			MaxAbsFunding:   0.003,
			BlockSettlement: true,
		},
		Timing: TimingConfig{
			Lookback:          12,
			EarlyMax:          1.5,
			MidMax:            3,
			LateMax:           5,
			EarlyMultiplier:   1.10,
			MidMultiplier:     1.15,
			LateMultiplier:    0.85,
			BlowoffMultiplier: 0.60,
		},
		Risk: RiskConfig{
			BaseOffsetATR:   0.1,
			ExtensionFactor: 0.1,
			MaxOffsetATR:    1.0,
			BandATR:         0.25,
			StopATR:         1.5,
			PivotBufferATR:  0.2,
			TP1R:            1.5,
			TP2R:            3.0,
		},
		Quality: QualityConfig{
			MinConfidentFactors: 3,
			FundSupportFloor:    -20,
			ProbabilityFloor:    0.55,
			VolatilityPMinShift: 0.05,
			MaxCorrelation:      0.7,
			SoftPass: SoftPassConfig{
				Enabled:        true,
				RelativeMargin: 0.05,
				Gates:          []string{GateFundSupport, GateProbabilityFloor, GateIndependence},
			},
		},
	}
}

// Validate runs the cross-field checks of every stage.
func (c Config) Validate() error {
	return errors.Join(
		c.Direction.Validate(),
		c.Timing.Validate(),
		c.Risk.Validate(),
		c.Quality.Validate(),
	)
}
