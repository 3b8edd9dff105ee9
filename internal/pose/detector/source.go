package detector

import (
	"time"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

// ClockSource is a live source whose cursor advances with the clock in
// whole frame periods, like a camera delivering frames at a fixed rate.
// Its handle is the cursor itself.
type ClockSource struct {
	id     string
	clock  timeutil.Clock
	start  time.Time
	period time.Duration
}

var _ l1landmarks.Source = (*ClockSource)(nil)

// NewClockSource starts a source at the clock's current time.
func NewClockSource(id string, clock timeutil.Clock, fps float64) *ClockSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if fps <= 0 {
		fps = 30
	}
	return &ClockSource{
		id:     id,
		clock:  clock,
		start:  clock.Now(),
		period: time.Duration(float64(time.Second) / fps),
	}
}

// ID implements l1landmarks.Source.
func (s *ClockSource) ID() string { return s.id }

// Cursor implements l1landmarks.Source.
func (s *ClockSource) Cursor() time.Duration {
	return s.clock.Since(s.start).Truncate(s.period)
}

// Handle implements l1landmarks.Source.
func (s *ClockSource) Handle(cursor time.Duration) l1landmarks.FrameHandle { return cursor }
