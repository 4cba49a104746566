package patterns

import (
	"math"
	"strings"

	"github.com/rs/zerolog"

	"stock-pattern/internal/analysis"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
	"stock-pattern/pkg/utils"
)

var _ analysis.PatternDetector = (*WedgeDetector)(nil)

// WedgeDetector finds wedge, pennant and flag consolidations. It holds no
// mutable state and may be shared across goroutines.
type WedgeDetector struct {
	params Params
	logger zerolog.Logger
}

// NewWedgeDetector validates params and returns a detector.
func NewWedgeDetector(params Params, logger zerolog.Logger) (*WedgeDetector, error) {
	if err := params.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "detector params")
	}
	return &WedgeDetector{
		params: params,
		logger: logger.With().Str("component", "detector").Logger(),
	}, nil
}

// Name returns the detector name.
func (d *WedgeDetector) Name() string {
	return "Wedge/Pennant/Flag"
}

// Params returns the detector's parameters.
func (d *WedgeDetector) Params() Params {
	return d.params
}

// MinBars returns the shortest series Detect will evaluate.
func (d *WedgeDetector) MinBars() int {
	return d.params.MinBars()
}

// ValidateBars rejects caller bugs: an empty ticker, an empty series,
// out-of-order or duplicate timestamps and impossible bars.
func ValidateBars(ticker string, bars []models.Bar) error {
	if strings.TrimSpace(ticker) == "" {
		return apperrors.NewValidationError("ticker", ticker, "must not be empty")
	}
	if len(bars) == 0 {
		return apperrors.NewValidationError("bars", 0, "bar series must not be empty")
	}
	for i, b := range bars {
		if !finite(b.High) || !finite(b.Low) || !finite(b.Close) {
			return apperrors.NewValidationError("bars", i, "prices must be finite")
		}
		if b.High < b.Low {
			return apperrors.NewValidationError("bars", i, "high below low")
		}
		if b.Volume < 0 {
			return apperrors.NewValidationError("bars", i, "negative volume")
		}
		if i > 0 && !b.Date.After(bars[i-1].Date) {
			return apperrors.NewValidationError("bars", i, "timestamps must be strictly ascending")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Detect scans bars and returns setups for eligible bars in date order.
// Histories shorter than MinBars yield an empty result and no error.
func (d *WedgeDetector) Detect(ticker string, bars []models.Bar, existing models.DateSet) ([]models.Setup, error) {
	if err := ValidateBars(ticker, bars); err != nil {
		return nil, err
	}

	p := d.params
	log := d.logger.With().Str("ticker", ticker).Logger()
	setups := []models.Setup{}

	if len(bars) < p.MinBars() {
		log.Debug().Int("bars", len(bars)).Int("required", p.MinBars()).Msg("Insufficient history")
		return setups, nil
	}

	s, err := precompute(bars, p)
	if err != nil {
		return nil, apperrors.Wrap(err, "precompute indicators")
	}

	cutoff := utils.TradingDaysBefore(bars[len(bars)-1].Date, p.CutoffTradingDays)
	emitted := models.NewDateSet(p.DateGranularity)

	for i := p.firstIndex(); i < len(bars); i++ {
		date := bars[i].Date
		if utils.CalendarDate(date).Before(cutoff) {
			continue
		}
		if existing.Contains(date) || emitted.Contains(date) {
			log.Debug().Time("date", date).Msg("Date already has a setup")
			continue
		}

		setup, reason := d.evaluate(ticker, s, i)
		if setup == nil {
			log.Debug().Time("date", date).Str("reason", reason).Msg("Candidate skipped")
			continue
		}

		emitted.Add(date)
		setups = append(setups, *setup)
		log.Debug().Time("date", date).Str("signal", setup.Signal).Float64("rr", setup.RewardToRisk).Msg("Setup detected")
	}

	return setups, nil
}

// evaluate runs the per-bar stages, returning nil and the failing stage
// when the candidate does not qualify.
func (d *WedgeDetector) evaluate(ticker string, s *series, i int) (*models.Setup, string) {
	p := d.params

	if _, ok := checkTrend(s, i, p); !ok {
		return nil, "trend"
	}
	vp, ok := checkVolumeTaper(s, i, p)
	if !ok {
		return nil, "volume"
	}
	sh, ok := classifyShape(s, i, p)
	if !ok {
		return nil, "shape"
	}

	plan := evaluateBreakout(s, i, vp, p)
	rrOK := plan.rr >= p.MinRewardToRisk
	if !rrOK && p.LowRRPolicy == LowRRSuppress {
		return nil, "reward-to-risk"
	}

	bar := s.bars[i]
	return &models.Setup{
		Ticker:          ticker,
		Date:            bar.Date,
		Close:           bar.Close,
		High:            bar.High,
		Low:             bar.Low,
		Volume:          bar.Volume,
		VolMA:           utils.Round(plan.volMA, 2),
		Trend:           true,
		Setup:           true,
		Signal:          signalLabel(QualityFor(sh.compression, p), sh.Kind(), plan.brokeOut && rrOK, !rrOK),
		Pattern:         string(sh.Kind()),
		ResistanceLevel: utils.Round(plan.resistance, 2),
		BreakoutPrice:   utils.Round(plan.entry, 2),
		BrokeOut:        plan.brokeOut,
		Compression:     utils.Round(sh.compression, 4),
		HighSlope:       utils.Round(sh.highSlope, 4),
		LowSlope:        utils.Round(sh.lowSlope, 4),
		SmoothedATR:     utils.Round(plan.atr, 4),
		StopLoss:        utils.Round(plan.stopLoss, 2),
		TakeProfit:      utils.Round(plan.takeProfit, 2),
		RiskPerShare:    plan.risk,
		RewardPerShare:  plan.reward,
		RewardToRisk:    plan.rr,
	}, ""
}

// QualityFor grades a compression ratio.
func QualityFor(compression float64, p Params) analysis.Quality {
	switch {
	case compression >= p.QualityAPlus:
		return analysis.QualityAPlus
	case compression >= p.QualityGood:
		return analysis.QualityGood
	default:
		return analysis.QualityOK
	}
}

func signalLabel(q analysis.Quality, kind models.PatternKind, breakout, lowRR bool) string {
	var b strings.Builder
	b.WriteString(string(q))
	b.WriteByte(' ')
	b.WriteString(string(kind))
	if breakout {
		b.WriteString(" Breakout")
	} else {
		b.WriteString(" Setup")
	}
	if lowRR {
		b.WriteString(" (Low RR)")
	}
	return b.String()
}
