package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l2smoothing"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/l4quality"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

// DefaultRefreshInterval drives the scheduler at display rate.
const DefaultRefreshInterval = time.Second / 60

// State is the lifecycle state of the scheduler.
type State int

const (
	Idle     State = iota // no active source
	Tracking              // source attached, ticking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the stage configuration of the pipeline.
type Config struct {
	Filter          l2smoothing.BankConfig
	Gate            l4quality.Config
	Zones           l3geometry.Zones
	RefreshInterval time.Duration
}

// DefaultConfig returns the production pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Filter:          l2smoothing.DefaultBankConfig(),
		Gate:            l4quality.DefaultConfig(),
		Zones:           l3geometry.DefaultZones(),
		RefreshInterval: DefaultRefreshInterval,
	}
}

// finiteSource is a Source with an end, such as a replay log. The
// scheduler detaches it once the final frame has been published.
type finiteSource interface {
	Done(cursor time.Duration) bool
}

// Stats counts scheduler activity since construction.
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	Skipped        uint64 `json:"skipped"`
	Detections     uint64 `json:"detections"`
	Empty          uint64 `json:"empty"`
	Rejected       uint64 `json:"rejected"`
	DetectorErrors uint64 `json:"detector_errors"`
	Published      uint64 `json:"published"`
}

// Scheduler runs one pipeline pass (detect, filter, measure, gate,
// publish) per new source frame. Ticks while the source cursor has not
// moved are no-ops.
type Scheduler struct {
	detector l1landmarks.Detector
	gate     *l4quality.Gate
	zones    l3geometry.Zones
	pub      *Publisher
	clock    timeutil.Clock
	refresh  time.Duration

	// tickMu serialises ticks; the filter bank is only touched under it.
	tickMu    sync.Mutex
	bank      *l2smoothing.Bank
	bankEpoch uint64
	seq       uint64

	mu         sync.Mutex
	state      State
	source     l1landmarks.Source
	epoch      uint64 // bumped on every Attach/Detach
	lastCursor time.Duration
	haveCursor bool

	ticks, skipped, detections, empty, rejected, detErrors, published atomic.Uint64
}

// NewScheduler wires a scheduler. A nil detector is a setup failure and is
// reported as l1landmarks.ErrDetectorInit.
func NewScheduler(detector l1landmarks.Detector, pub *Publisher, cfg Config, clock timeutil.Clock) (*Scheduler, error) {
	if detector == nil {
		return nil, l1landmarks.InitError("scheduler", errors.New("no detector configured"))
	}
	if pub == nil {
		pub = NewPublisher()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	bank, err := l2smoothing.NewBank(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter bank: %w", err)
	}
	gate, err := l4quality.NewGate(cfg.Gate)
	if err != nil {
		return nil, fmt.Errorf("quality gate: %w", err)
	}
	if err := cfg.Zones.Validate(); err != nil {
		return nil, fmt.Errorf("zones: %w", err)
	}
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &Scheduler{
		detector: detector,
		gate:     gate,
		zones:    cfg.Zones,
		pub:      pub,
		clock:    clock,
		refresh:  refresh,
		bank:     bank,
	}, nil
}

// Publisher returns the publisher the scheduler writes to.
func (s *Scheduler) Publisher() *Publisher { return s.pub }

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Source returns the attached source, or nil when idle.
func (s *Scheduler) Source() l1landmarks.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Attach starts a new tracking session on src. The filter history is
// discarded so the new session starts from scratch; the reset is applied
// before the session's first frame is filtered.
func (s *Scheduler) Attach(src l1landmarks.Source) {
	if src == nil {
		s.Detach()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.state = Tracking
	s.epoch++
	s.haveCursor = false
	diagf("attached source %q (session %d)", src.ID(), s.epoch)
}

// Detach stops tracking. The last published state stays in place.
func (s *Scheduler) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return
	}
	diagf("detached source %q", s.source.ID())
	s.detachLocked()
}

func (s *Scheduler) detachLocked() {
	s.source = nil
	s.state = Idle
	s.epoch++
	s.haveCursor = false
}

// Tick runs one pipeline pass if the source has advanced. It reports
// whether a new PoseState was published. The detector call is the only
// point at which Tick blocks.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.ticks.Add(1)

	s.mu.Lock()
	if s.state != Tracking {
		s.mu.Unlock()
		return false
	}
	src, epoch := s.source, s.epoch
	cursor := src.Cursor()
	if s.haveCursor && cursor == s.lastCursor {
		s.mu.Unlock()
		s.skipped.Add(1)
		return false
	}
	s.lastCursor, s.haveCursor = cursor, true
	handle := src.Handle(cursor)
	s.mu.Unlock()

	tsMs := timeutil.Millis(cursor)

	frame, err := s.detector.Detect(ctx, handle, tsMs)
	if ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	stale := s.epoch != epoch
	s.mu.Unlock()
	if stale {
		tracef("discarding frame at %v: source changed during detection", cursor)
		return false
	}

	if s.bankEpoch != epoch {
		s.bank.Reset()
		s.bankEpoch = epoch
	}

	state := s.process(frame, err, tsMs)
	state.SourceID = src.ID()
	state.SourceTime = cursor
	s.seq++
	state.Sequence = s.seq
	state.PublishedAt = s.clock.Now()

	s.pub.Publish(state)
	s.published.Add(1)

	if fs, ok := src.(finiteSource); ok && fs.Done(cursor) {
		s.mu.Lock()
		if s.epoch == epoch {
			diagf("source %q finished at %v", src.ID(), cursor)
			s.detachLocked()
		}
		s.mu.Unlock()
	}
	return true
}

// process turns one detector result into a fresh PoseState.
func (s *Scheduler) process(frame l1landmarks.Frame, detErr error, tsMs float64) *PoseState {
	invalid := func(r l4quality.Reason) *PoseState {
		return &PoseState{Reason: r, TimestampMs: tsMs, Zone: l3geometry.ZoneUndefined}
	}

	if detErr != nil {
		s.detErrors.Add(1)
		opsf("detector error at %.1fms: %v", tsMs, detErr)
		return invalid(l4quality.ReasonDetectorError)
	}
	if frame.Empty() {
		s.empty.Add(1)
		tracef("no detection at %.1fms", tsMs)
		return invalid(l4quality.ReasonNoDetection)
	}
	s.detections.Add(1)

	frame.TimestampMs = tsMs
	smoothed := s.bank.Smooth(frame)

	skel, verdict := s.gate.Evaluate(smoothed)
	if !verdict.OK {
		s.rejected.Add(1)
		tracef("rejected frame at %.1fms: %s", tsMs, verdict)
		return invalid(verdict.Reason)
	}

	midline, angles := l3geometry.Measure(skel)
	if midline.Degenerate() || !angles.Defined() {
		s.rejected.Add(1)
		tracef("undefined angle at %.1fms", tsMs)
		return invalid(l4quality.ReasonUndefinedAngle)
	}

	return &PoseState{
		Valid:       true,
		TimestampMs: tsMs,
		Midline:     &midline,
		Landmarks:   &skel,
		Angles:      angles,
		Zone:        s.zones.Classify(angles.Average),
	}
}

// Run drives Tick from a steady ticker until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.refresh)
	defer ticker.Stop()

	diagf("scheduler running at %v", s.refresh)
	for {
		select {
		case <-ctx.Done():
			diagf("scheduler stopped")
			return ctx.Err()
		case <-ticker.C():
			s.Tick(ctx)
		}
	}
}

// Stats returns a snapshot of the activity counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:          s.ticks.Load(),
		Skipped:        s.skipped.Load(),
		Detections:     s.detections.Load(),
		Empty:          s.empty.Load(),
		Rejected:       s.rejected.Load(),
		DetectorErrors: s.detErrors.Load(),
		Published:      s.published.Load(),
	}
}
