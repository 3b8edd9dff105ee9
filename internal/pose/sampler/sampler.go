// Package sampler records fixed-interval sessions of published pose
// states. Each session is bound to one subject, runs for a fixed number of
// logical ticks and is finalized exactly once.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/pipeline"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrInvalidSubject   = errors.New("invalid subject id")
	ErrNoSession        = errors.New("no finalized session")
)

var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,10}$`)

// ValidSubject reports whether id is an acceptable subject code.
func ValidSubject(id string) bool { return subjectPattern.MatchString(id) }

// Quality markers. Invalid records carry the gate reason when one is
// known, otherwise QualityLowConfidence.
const (
	QualityOK            = "ok"
	QualityLowConfidence = "low_confidence"
)

// Status of a finalized session.
type Status string

const (
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// State of the sampler.
type State int

const (
	Stopped State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "stopped"
}

// Config sets the sampling cadence.
type Config struct {
	Interval time.Duration
	Duration time.Duration
}

// DefaultConfig returns a 2 second window sampled every 10 ms.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Millisecond, Duration: 2 * time.Second}
}

// Target returns the number of records a complete session holds.
func (c Config) Target() int {
	return int(c.Duration / c.Interval)
}

// Validate checks the window holds at least one sample.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %v", c.Interval)
	}
	if c.Duration < c.Interval {
		return fmt.Errorf("recording duration %v is shorter than the sample interval %v", c.Duration, c.Interval)
	}
	return nil
}

// SampleRecord is one logical tick of a session. Angles, Midline and
// Landmarks are absent on invalid records.
type SampleRecord struct {
	Index             int
	OffsetMs          float64 // Index × interval
	SubjectID         string
	CapturedAt        time.Time
	SourceTimestampMs float64 // timestamp of the sampled PoseState
	Valid             bool
	Quality           string
	Angles            l3geometry.AngleReading
	Midline           *l3geometry.Midline
	Landmarks         *l1landmarks.Skeleton
}

// Session is a finalized recording.
type Session struct {
	ID         string
	SubjectID  string
	StartedAt  time.Time
	EndedAt    time.Time
	IntervalMs float64
	DurationMs float64
	Status     Status
	Records    []SampleRecord
}

// ValidCount returns how many records carry a measurement.
func (s *Session) ValidCount() int {
	n := 0
	for _, r := range s.Records {
		if r.Valid {
			n++
		}
	}
	return n
}

// Progress describes the current recording for UI countdowns.
type Progress struct {
	State     string    `json:"state"`
	SessionID string    `json:"session_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	WindowEnd time.Time `json:"window_end,omitempty"`
	Recorded  int       `json:"recorded"`
	Target    int       `json:"target"`
	Fraction  float64   `json:"fraction"`
}

// FinalizeFunc receives each session once it stops.
type FinalizeFunc func(*Session)

// Sampler reads the latest published PoseState once per logical tick.
type Sampler struct {
	reader pipeline.StateReader
	cfg    Config
	clock  timeutil.Clock

	mu         sync.RWMutex
	state      State
	current    *Session
	windowEnd  time.Time
	last       *Session
	onFinalize FinalizeFunc
}

// New returns a stopped sampler.
func New(reader pipeline.StateReader, cfg Config, clock timeutil.Clock) (*Sampler, error) {
	if reader == nil {
		return nil, errors.New("sampler needs a state reader")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sampler{reader: reader, cfg: cfg, clock: clock}, nil
}

// Config returns the sampling cadence.
func (s *Sampler) Config() Config { return s.cfg }

// OnFinalize installs the sink that receives finalized sessions. The sink
// runs on the goroutine that stopped the session, outside the sampler lock.
func (s *Sampler) OnFinalize(fn FinalizeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinalize = fn
}

// State returns the sampler state.
func (s *Sampler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start begins a new session for subjectID and returns its ID.
func (s *Sampler) Start(subjectID string) (string, error) {
	if !ValidSubject(subjectID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, subjectID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Recording {
		return "", ErrAlreadyRecording
	}
	now := s.clock.Now()
	target := s.cfg.Target()
	s.current = &Session{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		StartedAt:  now,
		IntervalMs: timeutil.Millis(s.cfg.Interval),
		DurationMs: timeutil.Millis(s.cfg.Duration),
		Records:    make([]SampleRecord, 0, target),
	}
	s.windowEnd = now.Add(s.cfg.Duration)
	s.state = Recording
	diagf("recording %s started for subject %s (%d samples every %v)", s.current.ID, subjectID, target, s.cfg.Interval)
	return s.current.ID, nil
}

// Tick appends one record when recording and reports whether it did.
// Invalid states still produce a record.
func (s *Sampler) Tick() bool {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return false
	}
	sess := s.current
	rec := s.record(len(sess.Records), s.reader.Current())
	sess.Records = append(sess.Records, rec)
	tracef("recording %s sample %d valid=%t", sess.ID, rec.Index, rec.Valid)

	var done *Session
	if len(sess.Records) >= s.cfg.Target() {
		done = s.finalizeLocked(StatusComplete)
	}
	sink := s.onFinalize
	s.mu.Unlock()

	if done != nil && sink != nil {
		sink(done)
	}
	return true
}

func (s *Sampler) record(index int, st *pipeline.PoseState) SampleRecord {
	rec := SampleRecord{
		Index:     index,
		OffsetMs:  float64(index) * timeutil.Millis(s.cfg.Interval),
		SubjectID: s.current.SubjectID,
		// CapturedAt follows the logical clock, not the tick callback.
		CapturedAt: s.current.StartedAt.Add(time.Duration(index) * s.cfg.Interval),
		Quality:    QualityLowConfidence,
	}
	if st == nil {
		return rec
	}
	rec.SourceTimestampMs = st.TimestampMs
	if !st.Valid {
		if st.Reason != "" {
			rec.Quality = string(st.Reason)
		}
		return rec
	}
	rec.Valid = true
	rec.Quality = QualityOK
	rec.Angles = st.Angles
	rec.Midline = st.Midline
	rec.Landmarks = st.Landmarks
	return rec
}

// Cancel stops the current session early and returns it.
func (s *Sampler) Cancel() (*Session, error) {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	done := s.finalizeLocked(StatusCancelled)
	sink := s.onFinalize
	s.mu.Unlock()

	if sink != nil {
		sink(done)
	}
	return done, nil
}

func (s *Sampler) finalizeLocked(status Status) *Session {
	sess := s.current
	sess.Status = status
	sess.EndedAt = s.clock.Now()
	s.last = sess
	s.current = nil
	s.state = Stopped
	diagf("recording %s %s with %d records (%d valid)", sess.ID, status, len(sess.Records), sess.ValidCount())
	return sess
}

// Last returns the most recently finalized session.
func (s *Sampler) Last() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil, ErrNoSession
	}
	return s.last, nil
}

// Progress reports the fraction of the current session recorded. When
// stopped it describes the last finalized session, if any.
func (s *Sampler) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := Progress{State: s.state.String(), Target: s.cfg.Target()}
	sess := s.current
	if sess != nil {
		p.WindowEnd = s.windowEnd
	} else {
		sess = s.last
	}
	if sess == nil {
		return p
	}
	p.SessionID = sess.ID
	p.SubjectID = sess.SubjectID
	p.StartedAt = sess.StartedAt
	p.Recorded = len(sess.Records)
	if p.Target > 0 {
		p.Fraction = float64(p.Recorded) / float64(p.Target)
	}
	return p
}

// Run ticks the sampler at the configured interval until ctx is done. The
// ticker runs for the life of the process; ticks while stopped are no-ops.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := s.Cancel(); err == nil {
				opsf("recording cancelled by shutdown")
			}
			return ctx.Err()
		case <-ticker.C():
			s.Tick()
		}
	}
}
