// Package patterns detects wedge, pennant and flag consolidations that form
// inside an uptrend and derives trade parameters for them.
package patterns

import (
	"fmt"
	"sort"

	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
)

// LowRRPolicy decides what happens to setups below the minimum reward-to-risk.
type LowRRPolicy string

const (
	// LowRRLabel emits the setup with a "(Low RR)" suffix on its signal.
	LowRRLabel LowRRPolicy = "label"
	// LowRRSuppress drops the setup.
	LowRRSuppress LowRRPolicy = "suppress"
)

// Params holds every tuning knob of the detector. Thresholds on slopes are in
// price units per bar.
type Params struct {
	Lookback        int     `mapstructure:"lookback" json:"lookback"`
	VolumeWindow    int     `mapstructure:"volume_window" json:"volumeWindow"`
	ATRPeriod       int     `mapstructure:"atr_period" json:"atrPeriod"`
	EMAPeriod       int     `mapstructure:"ema_period" json:"emaPeriod"`
	UptrendLookback int     `mapstructure:"uptrend_lookback" json:"uptrendLookback"`
	SMAPeriod       int     `mapstructure:"sma_period" json:"smaPeriod"`
	MinUptrendSlope float64 `mapstructure:"min_uptrend_slope" json:"minUptrendSlope"`

	VolumeDropFactor  float64 `mapstructure:"volume_drop_factor" json:"volumeDropFactor"`
	VolumeCVMax       float64 `mapstructure:"volume_cv_max" json:"volumeCvMax"`
	VolumeSpikeFactor float64 `mapstructure:"volume_spike_factor" json:"volumeSpikeFactor"`

	HighSlopeMax            float64 `mapstructure:"high_slope_max" json:"highSlopeMax"`
	LowSlopeMin             float64 `mapstructure:"low_slope_min" json:"lowSlopeMin"`
	WedgeMinCompression     float64 `mapstructure:"wedge_min_compression" json:"wedgeMinCompression"`
	PennantExtraCompression float64 `mapstructure:"pennant_extra_compression" json:"pennantExtraCompression"`
	FlagSlopeMax            float64 `mapstructure:"flag_slope_max" json:"flagSlopeMax"`
	FlagMinCompression      float64 `mapstructure:"flag_min_compression" json:"flagMinCompression"`

	TickSize         float64     `mapstructure:"tick_size" json:"tickSize"`
	BreakoutATRFrac  float64     `mapstructure:"breakout_atr_frac" json:"breakoutAtrFrac"`
	RecentVolumeMult float64     `mapstructure:"recent_volume_mult" json:"recentVolumeMult"`
	BaseVolumeMult   float64     `mapstructure:"base_volume_mult" json:"baseVolumeMult"`
	StopATRFrac      float64     `mapstructure:"stop_atr_frac" json:"stopAtrFrac"`
	StopTickMultiple float64     `mapstructure:"stop_tick_multiple" json:"stopTickMultiple"`
	PivotRadius      int         `mapstructure:"pivot_radius" json:"pivotRadius"`
	PivotLookback    int         `mapstructure:"pivot_lookback" json:"pivotLookback"`
	TargetATRMult    float64     `mapstructure:"target_atr_mult" json:"targetAtrMult"`
	MinRewardToRisk  float64     `mapstructure:"min_reward_to_risk" json:"minRewardToRisk"`
	MinCloseStrength float64     `mapstructure:"min_close_strength" json:"minCloseStrength"`
	LowRRPolicy      LowRRPolicy `mapstructure:"low_rr_policy" json:"lowRrPolicy"`

	QualityAPlus float64 `mapstructure:"quality_a_plus" json:"qualityAPlus"`
	QualityGood  float64 `mapstructure:"quality_good" json:"qualityGood"`

	// CutoffTradingDays widens emission beyond the latest bar: bars dated
	// within this many weekdays of the last bar are eligible.
	CutoffTradingDays int                    `mapstructure:"cutoff_trading_days" json:"cutoffTradingDays"`
	DateGranularity   models.DateGranularity `mapstructure:"date_granularity" json:"dateGranularity"`
}

// DefaultParams returns the daily-bar parameter set.
func DefaultParams() Params {
	return Params{
		Lookback:        10,
		VolumeWindow:    20,
		ATRPeriod:       14,
		EMAPeriod:       5,
		UptrendLookback: 20,
		SMAPeriod:       50,
		MinUptrendSlope: 0.05,

		VolumeDropFactor:  0.85,
		VolumeCVMax:       0.75,
		VolumeSpikeFactor: 2.0,

		HighSlopeMax:            -0.05,
		LowSlopeMin:             0.02,
		WedgeMinCompression:     0.08,
		PennantExtraCompression: 0.05,
		FlagSlopeMax:            0.03,
		FlagMinCompression:      0.05,

		TickSize:         0.01,
		BreakoutATRFrac:  0.1,
		RecentVolumeMult: 1.2,
		BaseVolumeMult:   1.1,
		StopATRFrac:      0.5,
		StopTickMultiple: 2,
		PivotRadius:      2,
		PivotLookback:    60,
		TargetATRMult:    2.0,
		MinRewardToRisk:  1.5,
		MinCloseStrength: 0.6,
		LowRRPolicy:      LowRRLabel,

		QualityAPlus: 0.20,
		QualityGood:  0.10,

		CutoffTradingDays: 0,
		DateGranularity:   models.GranularityDay,
	}
}

// Profiles returns the built-in strategy variants keyed by name.
func Profiles() map[string]Params {
	conservative := DefaultParams()
	conservative.VolumeDropFactor = 0.75
	conservative.VolumeCVMax = 0.5
	conservative.WedgeMinCompression = 0.12
	conservative.FlagMinCompression = 0.08
	conservative.MinRewardToRisk = 2.0
	conservative.LowRRPolicy = LowRRSuppress

	aggressive := DefaultParams()
	aggressive.Lookback = 7
	aggressive.VolumeWindow = 15
	aggressive.ATRPeriod = 7
	aggressive.EMAPeriod = 3
	aggressive.HighSlopeMax = -0.02
	aggressive.LowSlopeMin = 0.01
	aggressive.WedgeMinCompression = 0.05
	aggressive.MinRewardToRisk = 1.2
	aggressive.CutoffTradingDays = 2

	intraday := DefaultParams()
	intraday.Lookback = 12
	intraday.VolumeWindow = 30
	intraday.UptrendLookback = 30
	intraday.MinUptrendSlope = 0.005
	intraday.HighSlopeMax = -0.005
	intraday.LowSlopeMin = 0.002
	intraday.FlagSlopeMax = 0.004
	intraday.PivotLookback = 120
	intraday.DateGranularity = models.GranularityTimestamp

	return map[string]Params{
		"default":      DefaultParams(),
		"conservative": conservative,
		"aggressive":   aggressive,
		"intraday":     intraday,
	}
}

// ProfileNames returns the built-in profile names in sorted order.
func ProfileNames() []string {
	profiles := Profiles()
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns the named built-in parameter set.
func Profile(name string) (Params, error) {
	p, ok := Profiles()[name]
	if !ok {
		return Params{}, apperrors.Wrapf(apperrors.ErrConfigInvalid, "unknown detector profile %q", name)
	}
	return p, nil
}

// MinBars is the shortest history the detector will evaluate.
func (p Params) MinBars() int {
	return max(p.UptrendLookback, p.SMAPeriod) + p.Lookback + p.VolumeWindow + p.ATRPeriod + 2
}

// firstIndex is the lowest bar index whose every window fits in history.
func (p Params) firstIndex() int {
	return max(p.Lookback, p.UptrendLookback, p.VolumeWindow, p.ATRPeriod)
}

// Validate checks that the parameters describe a usable detector.
func (p Params) Validate() error {
	positiveInts := []struct {
		name  string
		value int
	}{
		{"volume_window", p.VolumeWindow},
		{"atr_period", p.ATRPeriod},
		{"ema_period", p.EMAPeriod},
		{"sma_period", p.SMAPeriod},
		{"pivot_radius", p.PivotRadius},
		{"pivot_lookback", p.PivotLookback},
	}
	for _, f := range positiveInts {
		if f.value <= 0 {
			return apperrors.NewValidationError(f.name, f.value, "must be positive")
		}
	}

	if p.Lookback < 4 {
		return apperrors.NewValidationError("lookback", p.Lookback, "must be at least 4")
	}
	if p.UptrendLookback < 2 {
		return apperrors.NewValidationError("uptrend_lookback", p.UptrendLookback, "must be at least 2")
	}
	if p.MinUptrendSlope <= 0 {
		return apperrors.NewValidationError("min_uptrend_slope", p.MinUptrendSlope, "must be positive")
	}
	if p.VolumeDropFactor <= 0 || p.VolumeDropFactor >= 1 {
		return apperrors.NewValidationError("volume_drop_factor", p.VolumeDropFactor, "must be in (0, 1)")
	}
	if p.VolumeCVMax <= 0 {
		return apperrors.NewValidationError("volume_cv_max", p.VolumeCVMax, "must be positive")
	}
	if p.VolumeSpikeFactor <= 0 {
		return apperrors.NewValidationError("volume_spike_factor", p.VolumeSpikeFactor, "must be positive")
	}
	if p.HighSlopeMax >= 0 {
		return apperrors.NewValidationError("high_slope_max", p.HighSlopeMax, "must be negative")
	}
	if p.LowSlopeMin <= 0 {
		return apperrors.NewValidationError("low_slope_min", p.LowSlopeMin, "must be positive")
	}
	if p.WedgeMinCompression <= 0 || p.FlagMinCompression <= 0 || p.PennantExtraCompression < 0 {
		return apperrors.NewValidationError("compression", fmt.Sprintf("%v/%v/%v",
			p.WedgeMinCompression, p.PennantExtraCompression, p.FlagMinCompression), "minimums must be positive")
	}
	if p.FlagSlopeMax <= 0 {
		return apperrors.NewValidationError("flag_slope_max", p.FlagSlopeMax, "must be positive")
	}
	if p.TickSize < 0.0001 {
		return apperrors.NewValidationError("tick_size", p.TickSize, "must be at least 0.0001")
	}
	if p.MinRewardToRisk <= 0 {
		return apperrors.NewValidationError("min_reward_to_risk", p.MinRewardToRisk, "must be positive")
	}
	if p.MinCloseStrength < 0 || p.MinCloseStrength > 1 {
		return apperrors.NewValidationError("min_close_strength", p.MinCloseStrength, "must be in [0, 1]")
	}
	if p.LowRRPolicy != LowRRLabel && p.LowRRPolicy != LowRRSuppress {
		return apperrors.NewValidationError("low_rr_policy", p.LowRRPolicy, "must be label or suppress")
	}
	if p.QualityGood > p.QualityAPlus {
		return apperrors.NewValidationError("quality_good", p.QualityGood, "must not exceed quality_a_plus")
	}
	if p.CutoffTradingDays < 0 {
		return apperrors.NewValidationError("cutoff_trading_days", p.CutoffTradingDays, "must not be negative")
	}
	if !p.DateGranularity.Valid() {
		return apperrors.NewValidationError("date_granularity", p.DateGranularity, "must be day or timestamp")
	}
	return nil
}
