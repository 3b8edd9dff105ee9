package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/l4quality"
)

// PoseState is the snapshot the pipeline publishes once per processed
// source frame. A published PoseState is never mutated; readers may keep
// the pointer for as long as they like.
type PoseState struct {
	Valid  bool
	Reason l4quality.Reason // why the state is invalid; empty when Valid

	Sequence    uint64        // increments with every publication
	SourceID    string        // source the frame came from
	SourceTime  time.Duration // source cursor of the processed frame
	TimestampMs float64       // timestamp fed to the detector and filters
	PublishedAt time.Time

	// Midline and Landmarks are nil when the state is invalid.
	Midline   *l3geometry.Midline
	Landmarks *l1landmarks.Skeleton
	Angles    l3geometry.AngleReading
	Zone      l3geometry.Zone // zone of the average angle
}

// StateReader is implemented by anything that exposes the current
// PoseState.
type StateReader interface {
	Current() *PoseState
}

// Publisher holds the current PoseState. Publication is a single atomic
// pointer swap so readers never see a partially built state.
type Publisher struct {
	cur atomic.Pointer[PoseState]
}

// NewPublisher returns a publisher whose initial state is invalid with
// ReasonNoDetection.
func NewPublisher() *Publisher {
	p := &Publisher{}
	p.cur.Store(&PoseState{
		Reason: l4quality.ReasonNoDetection,
		Angles: l3geometry.AngleReading{},
		Zone:   l3geometry.ZoneUndefined,
	})
	return p
}

// Publish replaces the current state.
func (p *Publisher) Publish(s *PoseState) {
	p.cur.Store(s)
}

// Current returns the latest published state. It never returns nil.
func (p *Publisher) Current() *PoseState {
	return p.cur.Load()
}
