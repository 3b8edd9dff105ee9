package l2smoothing

import (
	"fmt"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
)

// BankConfig holds the parameters of each channel group.
type BankConfig struct {
	Position Params // X and Y channels
	Depth    Params // Z channel
}

// DefaultBankConfig returns the production parameter groups.
func DefaultBankConfig() BankConfig {
	return BankConfig{
		Position: DefaultPositionParams(),
		Depth:    DefaultDepthParams(),
	}
}

// Validate checks both parameter groups.
func (c BankConfig) Validate() error {
	if err := c.Position.Validate(); err != nil {
		return fmt.Errorf("position filter: %w", err)
	}
	if err := c.Depth.Validate(); err != nil {
		return fmt.Errorf("depth filter: %w", err)
	}
	return nil
}

// Bank is a fixed arena of filter states indexed by (landmark, axis). It is
// owned by a single tracking session and is not safe for concurrent use.
type Bank struct {
	cfg     BankConfig
	filters [l1landmarks.NumLandmarks][l1landmarks.NumAxes]Filter
}

// NewBank validates cfg and returns a bank with every channel uninitialised.
func NewBank(cfg BankConfig) (*Bank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bank{cfg: cfg}
	b.Reset()
	return b, nil
}

// Config returns the bank's parameter groups.
func (b *Bank) Config() BankConfig { return b.cfg }

// Reset clears every channel. Called when a new source is attached.
func (b *Bank) Reset() {
	for i := range b.filters {
		b.filters[i][l1landmarks.AxisX] = NewFilter(b.cfg.Position)
		b.filters[i][l1landmarks.AxisY] = NewFilter(b.cfg.Position)
		b.filters[i][l1landmarks.AxisZ] = NewFilter(b.cfg.Depth)
	}
}

// Channel returns the filter for one landmark axis, or nil when the index
// is outside the arena.
func (b *Bank) Channel(index int, axis l1landmarks.Axis) *Filter {
	if index < 0 || index >= l1landmarks.NumLandmarks || axis < 0 || axis >= l1landmarks.NumAxes {
		return nil
	}
	return &b.filters[index][axis]
}

// Smooth filters every landmark of frame at the frame's timestamp and
// returns a new frame. Visibility is copied through. Landmarks beyond the
// arena are passed through unfiltered.
func (b *Bank) Smooth(frame l1landmarks.Frame) l1landmarks.Frame {
	out := l1landmarks.Frame{
		TimestampMs: frame.TimestampMs,
		Landmarks:   make([]l1landmarks.Landmark, len(frame.Landmarks)),
	}
	for i, raw := range frame.Landmarks {
		if i >= l1landmarks.NumLandmarks {
			out.Landmarks[i] = raw
			continue
		}
		ch := &b.filters[i]
		out.Landmarks[i] = l1landmarks.Landmark{
			X:          ch[l1landmarks.AxisX].Update(frame.TimestampMs, raw.X),
			Y:          ch[l1landmarks.AxisY].Update(frame.TimestampMs, raw.Y),
			Z:          ch[l1landmarks.AxisZ].Update(frame.TimestampMs, raw.Z),
			Visibility: raw.Visibility,
		}
	}
	return out
}
