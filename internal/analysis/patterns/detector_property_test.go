package patterns

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"stock-pattern/internal/models"
)

// consolidation describes a randomised uptrend followed by a narrowing window.
type consolidation struct {
	Trend   float64
	Squeeze float64
	Width   float64
	Taper   float64
	Spike   float64
	Jitter  float64
	Prefix  int
	Seed    int64
}

func consolidationGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(consolidation{}), map[string]gopter.Gen{
		"Trend":   gen.Float64Range(0.0, 1.0),
		"Squeeze": gen.Float64Range(0.0, 0.25),
		"Width":   gen.Float64Range(0.5, 5.0),
		"Taper":   gen.Float64Range(0.3, 1.1),
		"Spike":   gen.Float64Range(0.2, 2.5),
		"Jitter":  gen.Float64Range(0.0, 0.6),
		"Prefix":  gen.IntRange(0, 60),
		"Seed":    gen.Int64Range(1, 1<<30),
	})
}

// bars renders the consolidation as a valid daily series. Every bar in the
// last stretch is a candidate when the detector's cutoff is widened.
func (c consolidation) bars() []models.Bar {
	n := 90 + c.Prefix
	bars := make([]models.Bar, 0, n+10)
	state := uint64(c.Seed)
	noise := func() float64 {
		state = state*6364136223846793005 + 1442695040888963407
		return (float64(state>>11)/float64(1<<53) - 0.5) * 2 * c.Jitter
	}

	for i := 0; i < n; i++ {
		px := 100 + c.Trend*float64(i) + noise()
		bars = append(bars, models.Bar{
			Date:   day(i),
			Open:   px,
			High:   px + 1 + math.Abs(noise()),
			Low:    px - 1 - math.Abs(noise()),
			Close:  px,
			Volume: 1_000_000,
		})
	}

	mid := bars[n-1].Close
	for k := 0; k < 10; k++ {
		half := math.Max(c.Width-c.Squeeze*float64(k), 0.05) / 2
		px := mid + noise()*half
		vol := int64(1_000_000)
		if k >= 5 {
			vol = int64(1_000_000 * c.Taper)
		}
		if k == 9 {
			vol = int64(1_000_000 * c.Spike)
		}
		bars = append(bars, models.Bar{
			Date:   day(n + k),
			Open:   mid,
			High:   math.Max(mid+half, px),
			Low:    math.Min(mid-half, px),
			Close:  px,
			Volume: vol,
		})
	}
	return bars
}

func propertyDetector(mutate func(*Params)) *WedgeDetector {
	p := DefaultParams()
	p.CutoffTradingDays = 10
	if mutate != nil {
		mutate(&p)
	}
	d, err := NewWedgeDetector(p, zerolog.Nop())
	if err != nil {
		panic(err)
	}
	return d
}

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0
	return gopter.NewProperties(parameters)
}

func TestProperty_Determinism(t *testing.T) {
	properties := newProperties()
	d := propertyDetector(nil)

	properties.Property("repeated detection yields identical output", prop.ForAll(
		func(c consolidation) bool {
			bars := c.bars()
			a, errA := d.Detect("PROP", bars, models.DateSet{})
			b, errB := d.Detect("PROP", bars, models.DateSet{})
			return errA == nil && errB == nil && reflect.DeepEqual(a, b)
		},
		consolidationGen(),
	))

	properties.TestingRun(t)
}

func TestProperty_ExclusionRespected(t *testing.T) {
	properties := newProperties()
	d := propertyDetector(func(p *Params) { p.LowRRPolicy = LowRRLabel })

	properties.Property("no emitted setup falls on an excluded date", prop.ForAll(
		func(c consolidation, excludeEvery int) bool {
			bars := c.bars()
			existing := models.NewDateSet(models.GranularityDay)
			for i := len(bars) - 1; i >= 0; i -= excludeEvery {
				existing.Add(bars[i].Date)
			}

			setups, err := d.Detect("PROP", bars, existing)
			if err != nil {
				return false
			}
			for _, s := range setups {
				if existing.Contains(s.Date) {
					return false
				}
			}
			return true
		},
		consolidationGen(),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestProperty_MinimumWindow(t *testing.T) {
	properties := newProperties()
	d := propertyDetector(nil)

	properties.Property("histories below MinBars never emit", prop.ForAll(
		func(c consolidation, keep int) bool {
			bars := c.bars()
			keep = min(keep, d.MinBars()-1)
			setups, err := d.Detect("PROP", bars[len(bars)-keep:], models.DateSet{})
			return err == nil && len(setups) == 0
		},
		consolidationGen(),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_EmittedRecordInvariants(t *testing.T) {
	properties := newProperties()
	d := propertyDetector(nil)

	properties.Property("emitted setups are consistent, bounded and unique per date", prop.ForAll(
		func(c consolidation) bool {
			setups, err := d.Detect("PROP", c.bars(), models.DateSet{})
			if err != nil {
				return false
			}
			seen := make(map[string]bool)
			var prev time.Time
			for _, s := range setups {
				if s.RiskPerShare <= 0 || s.RewardPerShare <= 0 {
					return false
				}
				if math.Abs(s.RewardToRisk-s.RewardPerShare/s.RiskPerShare) > 1e-4 {
					return false
				}
				if s.Compression <= 0 || s.Compression > 1 {
					return false
				}
				if s.SmoothedATR <= 0 {
					return false
				}
				key := s.Date.Format("2006-01-02")
				if seen[key] || (!prev.IsZero() && !s.Date.After(prev)) {
					return false
				}
				seen[key] = true
				prev = s.Date
			}
			return true
		},
		consolidationGen(),
	))

	properties.TestingRun(t)
}

func TestProperty_SlopeSignRejectsRisingChannel(t *testing.T) {
	properties := newProperties()
	d := propertyDetector(nil)

	properties.Property("a window with both trendlines rising never classifies", prop.ForAll(
		func(rise float64) bool {
			bars := uptrendBars(100)
			for i := 90; i < 100; i++ {
				bars[i].High += rise * float64(i-90)
				bars[i].Low += rise * float64(i-90) * 0.5
				bars[i].Close = (bars[i].High + bars[i].Low) / 2
				if i >= 95 {
					bars[i].Volume = 500_000
				}
			}
			s := &series{highs: make([]float64, 100), lows: make([]float64, 100), closes: make([]float64, 100)}
			for i, b := range bars {
				s.highs[i], s.lows[i], s.closes[i] = b.High, b.Low, b.Close
			}
			_, ok := classifyShape(s, 99, d.Params())
			return !ok
		},
		gen.Float64Range(0.01, 1.0),
	))

	properties.TestingRun(t)
}
