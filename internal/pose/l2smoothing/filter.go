package l2smoothing

import (
	"fmt"
	"math"
)

// MinDt is the floor, in seconds, applied to the time step between two
// samples. Duplicate or backwards timestamps are clamped to it.
const MinDt = 1e-6

// Params configures one filter channel.
type Params struct {
	MinCutoff float64 `json:"min_cutoff"` // Hz, cutoff at zero speed
	Beta      float64 `json:"beta"`       // cutoff gain per unit of speed
	DCutoff   float64 `json:"d_cutoff"`   // Hz, fixed cutoff for the derivative
}

// DefaultPositionParams are used for the horizontal and vertical channels.
func DefaultPositionParams() Params {
	return Params{MinCutoff: 2.0, Beta: 0.3, DCutoff: 1.0}
}

// DefaultDepthParams are used for the depth channel, which is noisier and
// does not feed the angle computation.
func DefaultDepthParams() Params {
	return Params{MinCutoff: 1.0, Beta: 0.1, DCutoff: 1.0}
}

// Validate checks that the adaptive cutoff stays strictly positive.
func (p Params) Validate() error {
	if !(p.MinCutoff > 0) || math.IsInf(p.MinCutoff, 0) {
		return fmt.Errorf("min_cutoff must be positive and finite, got %v", p.MinCutoff)
	}
	if !(p.DCutoff > 0) || math.IsInf(p.DCutoff, 0) {
		return fmt.Errorf("d_cutoff must be positive and finite, got %v", p.DCutoff)
	}
	if !(p.Beta >= 0) || math.IsInf(p.Beta, 0) {
		return fmt.Errorf("beta must be non-negative and finite, got %v", p.Beta)
	}
	return nil
}

// Alpha returns the smoothing coefficient of a first-order low-pass filter
// with the given cutoff (Hz) sampled with step dt (seconds).
func Alpha(dt, cutoff float64) float64 {
	tau := 1.0 / (2 * math.Pi * cutoff)
	return 1.0 / (1.0 + tau/dt)
}

// Filter is the state of one scalar channel. The zero value is an
// uninitialised filter with zero parameters; use NewFilter.
type Filter struct {
	params Params

	initialized bool
	lastMs      float64 // source time of the last sample, never decreases
	lastValue   float64 // last smoothed value
	lastDeriv   float64 // last smoothed derivative (units per second)
}

// NewFilter returns an uninitialised filter.
func NewFilter(p Params) Filter {
	return Filter{params: p}
}

// Params returns the filter configuration.
func (f *Filter) Params() Params { return f.params }

// Initialized reports whether the filter has seen a sample.
func (f *Filter) Initialized() bool { return f.initialized }

// Last returns the last smoothed value and derivative.
func (f *Filter) Last() (value, deriv float64) { return f.lastValue, f.lastDeriv }

// Reset clears the history but keeps the parameters.
func (f *Filter) Reset() {
	*f = Filter{params: f.params}
}

// Update feeds one raw sample taken at timestampMs and returns the smoothed
// value. The first sample is returned unchanged. Non-finite samples pass
// through without touching the state so one bad detection cannot poison
// the channel for the rest of the session.
func (f *Filter) Update(timestampMs, raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return raw
	}
	if !f.initialized {
		f.initialized = true
		f.lastMs = timestampMs
		f.lastValue = raw
		f.lastDeriv = 0
		return raw
	}

	dt := math.Max(MinDt, (timestampMs-f.lastMs)/1000)

	dx := (raw - f.lastValue) / dt
	aD := Alpha(dt, f.params.DCutoff)
	dxHat := aD*dx + (1-aD)*f.lastDeriv

	cutoff := f.params.MinCutoff + f.params.Beta*math.Abs(dxHat)
	aX := Alpha(dt, cutoff)
	xHat := aX*raw + (1-aX)*f.lastValue

	if timestampMs > f.lastMs {
		f.lastMs = timestampMs
	}
	f.lastValue = xHat
	f.lastDeriv = dxHat
	return xHat
}
