package ems

import (
	"math"
	"math/rand"
	"time"
)

const (
	baseDemandKW   = 3.0
	demandNoiseStd = 0.2
)

// Forecaster produces deterministic time-of-day demand and solar curves with
// an injected noise source. The generator is seedable so simulation runs are
// reproducible.
type Forecaster struct {
	SolarCapacityKW float64
	rng             *rand.Rand
}

// NewForecaster builds a forecaster around the given noise source. A nil rng
// falls back to a time-seeded generator.
func NewForecaster(solarCapacityKW float64, rng *rand.Rand) *Forecaster {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Forecaster{SolarCapacityKW: solarCapacityKW, rng: rng}
}

// Demand predicts the load in kW for the given hour of day: a sinusoidal
// daytime bump peaking at noon, a cosine evening ramp, a flat night floor,
// plus Gaussian noise.
func (f *Forecaster) Demand(hour float64) float64 {
	dayFactor := math.Pow(math.Sin(math.Pi*(hour-6)/12), 2)
	eveningFactor := 0.7 * (1 + math.Cos(math.Pi*(hour-18)/6))

	var demand float64
	switch {
	case hour >= 6 && hour < 18:
		demand = baseDemandKW + 4*dayFactor
	case hour >= 18 && hour < 24:
		demand = baseDemandKW + 4.5*eveningFactor
	default:
		demand = baseDemandKW + 1
	}
	return demand + f.rng.NormFloat64()*demandNoiseStd
}

// Solar predicts the generation in kW for the given hour of day. It is
// exactly zero outside the [6,18) daylight window; inside, a sinusoidal
// profile modulated by a seasonal factor and random cloud cover.
func (f *Forecaster) Solar(hour float64) float64 {
	h := math.Mod(hour, 24)
	if h < 6 || h >= 18 {
		return 0
	}
	base := f.SolarCapacityKW * math.Sin(math.Pi*(h-6)/12)
	seasonal := 1 + 0.3*math.Sin(2*math.Pi*(h-12)/24)
	cloud := 0.7 + 0.3*f.rng.Float64()
	return base * seasonal * cloud
}
