package sampler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/l4quality"
	"github.com/banshee-data/abduction.report/internal/pose/pipeline"
	"github.com/banshee-data/abduction.report/internal/testutil"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

var t0 = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

func validState(left, right float64) *pipeline.PoseState {
	skel := testutil.Skeleton(left, right)
	mid, angles := l3geometry.Measure(skel)
	return &pipeline.PoseState{
		Valid:       true,
		TimestampMs: 1234.5,
		Midline:     &mid,
		Landmarks:   &skel,
		Angles:      angles,
		Zone:        l3geometry.DefaultZones().Classify(angles.Average),
	}
}

func newSampler(t *testing.T, cfg Config) (*Sampler, *pipeline.Publisher, *timeutil.MockClock) {
	t.Helper()
	pub := pipeline.NewPublisher()
	clock := timeutil.NewMockClock(t0)
	s, err := New(pub, cfg, clock)
	require.NoError(t, err)
	return s, pub, clock
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 200, cfg.Target())

	assert.Error(t, Config{Interval: 0, Duration: time.Second}.Validate())
	assert.Error(t, Config{Interval: time.Second, Duration: time.Millisecond}.Validate())

	_, err := New(nil, cfg, nil)
	assert.Error(t, err)
}

func TestValidSubject(t *testing.T) {
	for _, ok := range []string{"P01", "a", "abc_DEF-9", "0123456789"} {
		assert.True(t, ValidSubject(ok), ok)
	}
	for _, bad := range []string{"", "01234567890", "has space", "ä", "a/b", "x.y"} {
		assert.False(t, ValidSubject(bad), bad)
	}
}

func TestSampler_CompleteSessionHas200Records(t *testing.T) {
	s, pub, _ := newSampler(t, DefaultConfig())
	pub.Publish(validState(35, 40))

	var finalized []*Session
	s.OnFinalize(func(sess *Session) { finalized = append(finalized, sess) })

	id, err := s.Start("P01")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, Recording, s.State())

	n := 0
	for s.Tick() {
		n++
		require.Less(t, n, 1000)
	}
	assert.Equal(t, 200, n)
	assert.Equal(t, Stopped, s.State())

	require.Len(t, finalized, 1)
	sess := finalized[0]
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, StatusComplete, sess.Status)
	assert.Equal(t, "P01", sess.SubjectID)
	assert.Equal(t, 10.0, sess.IntervalMs)
	assert.Equal(t, 2000.0, sess.DurationMs)
	require.Len(t, sess.Records, 200)
	assert.Equal(t, 200, sess.ValidCount())

	for i, r := range sess.Records {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, float64(i)*10, r.OffsetMs)
		if i > 0 {
			assert.Greater(t, r.OffsetMs, sess.Records[i-1].OffsetMs)
		}
	}
	last := sess.Records[199]
	assert.Equal(t, 1990.0, last.OffsetMs)
	assert.Equal(t, t0.Add(1990*time.Millisecond), last.CapturedAt)
	assert.Equal(t, QualityOK, last.Quality)
	assert.InDelta(t, 37.5, last.Angles.Average.Deg, 1e-9)
	assert.Equal(t, 1234.5, last.SourceTimestampMs)
	require.NotNil(t, last.Midline)
	require.NotNil(t, last.Landmarks)

	got, err := s.Last()
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestSampler_InvalidStatesStillRecorded(t *testing.T) {
	s, pub, _ := newSampler(t, Config{Interval: 10 * time.Millisecond, Duration: 50 * time.Millisecond})
	_, err := s.Start("P02")
	require.NoError(t, err)

	// Initial publisher state: no detection.
	require.True(t, s.Tick())
	pub.Publish(&pipeline.PoseState{Reason: l4quality.ReasonLowVisibility, Zone: l3geometry.ZoneUndefined})
	require.True(t, s.Tick())
	pub.Publish(&pipeline.PoseState{Zone: l3geometry.ZoneUndefined})
	require.True(t, s.Tick())
	pub.Publish(validState(30, 30))
	require.True(t, s.Tick())
	require.True(t, s.Tick())
	assert.False(t, s.Tick())

	sess, err := s.Last()
	require.NoError(t, err)
	require.Len(t, sess.Records, 5)
	assert.Equal(t, string(l4quality.ReasonNoDetection), sess.Records[0].Quality)
	assert.Equal(t, string(l4quality.ReasonLowVisibility), sess.Records[1].Quality)
	assert.Equal(t, QualityLowConfidence, sess.Records[2].Quality)
	for _, r := range sess.Records[:3] {
		assert.False(t, r.Valid)
		assert.Nil(t, r.Midline)
		assert.Nil(t, r.Landmarks)
		assert.False(t, r.Angles.Average.Defined)
	}
	assert.True(t, sess.Records[3].Valid)
	assert.Equal(t, 2, sess.ValidCount())
}

func TestSampler_StartRejections(t *testing.T) {
	s, _, _ := newSampler(t, DefaultConfig())

	_, err := s.Start("bad code!")
	assert.ErrorIs(t, err, ErrInvalidSubject)
	assert.Equal(t, Stopped, s.State())

	_, err = s.Start("P01")
	require.NoError(t, err)
	_, err = s.Start("P02")
	assert.ErrorIs(t, err, ErrAlreadyRecording)
	assert.Equal(t, "P01", s.Progress().SubjectID)
}

func TestSampler_StartClearsPreviousRecords(t *testing.T) {
	s, pub, _ := newSampler(t, Config{Interval: time.Millisecond, Duration: 3 * time.Millisecond})
	pub.Publish(validState(30, 30))

	_, err := s.Start("A")
	require.NoError(t, err)
	for s.Tick() {
	}
	first, _ := s.Last()

	_, err = s.Start("B")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Progress().Recorded)
	for s.Tick() {
	}
	second, _ := s.Last()
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, first.Records, 3)
	assert.Len(t, second.Records, 3)
	assert.Equal(t, "B", second.Records[0].SubjectID)
}

func TestSampler_Cancel(t *testing.T) {
	s, pub, clock := newSampler(t, DefaultConfig())
	pub.Publish(validState(30, 30))

	_, err := s.Cancel()
	assert.ErrorIs(t, err, ErrNotRecording)
	_, err = s.Last()
	assert.ErrorIs(t, err, ErrNoSession)

	var sunk *Session
	s.OnFinalize(func(sess *Session) { sunk = sess })

	_, err = s.Start("P01")
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		require.True(t, s.Tick())
	}
	clock.Advance(400 * time.Millisecond)
	sess, err := s.Cancel()
	require.NoError(t, err)
	assert.Same(t, sess, sunk)
	assert.Equal(t, StatusCancelled, sess.Status)
	assert.Len(t, sess.Records, 40)
	assert.Equal(t, t0.Add(400*time.Millisecond), sess.EndedAt)

	// Further ticks are ignored.
	assert.False(t, s.Tick())
	assert.Len(t, sess.Records, 40)
}

func TestSampler_Progress(t *testing.T) {
	s, _, _ := newSampler(t, DefaultConfig())
	p := s.Progress()
	assert.Equal(t, "stopped", p.State)
	assert.Equal(t, 200, p.Target)
	assert.Zero(t, p.Fraction)

	id, err := s.Start("P01")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		s.Tick()
	}
	p = s.Progress()
	assert.Equal(t, "recording", p.State)
	assert.Equal(t, id, p.SessionID)
	assert.Equal(t, 50, p.Recorded)
	assert.InDelta(t, 0.25, p.Fraction, 1e-12)
	assert.Equal(t, t0.Add(2*time.Second), p.WindowEnd)
}

func TestSampler_Run(t *testing.T) {
	s, pub, clock := newSampler(t, Config{Interval: 10 * time.Millisecond, Duration: 50 * time.Millisecond})
	pub.Publish(validState(30, 30))

	var mu sync.Mutex
	var done *Session
	s.OnFinalize(func(sess *Session) {
		mu.Lock()
		done = sess
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, time.Second, time.Millisecond)

	_, err := s.Start("P01")
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		clock.Advance(10 * time.Millisecond)
		want := i
		require.Eventually(t, func() bool {
			if want == 5 {
				return s.State() == Stopped
			}
			return s.Progress().Recorded == want
		}, time.Second, time.Millisecond)
	}

	mu.Lock()
	require.NotNil(t, done)
	assert.Len(t, done.Records, 5)
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestSampler_RunShutdownCancelsRecording(t *testing.T) {
	s, _, clock := newSampler(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, time.Second, time.Millisecond)

	_, err := s.Start("P01")
	require.NoError(t, err)
	cancel()
	<-errc

	sess, err := s.Last()
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, sess.Status)
}

type stepSource struct {
	mu     sync.Mutex
	cursor time.Duration
}

func (s *stepSource) ID() string { return "cam0" }

func (s *stepSource) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *stepSource) Handle(cursor time.Duration) l1landmarks.FrameHandle { return cursor }

func (s *stepSource) advance(d time.Duration) {
	s.mu.Lock()
	s.cursor += d
	s.mu.Unlock()
}

func TestSampler_KeepsSamplingWhileDetectorStalls(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	calls := 0
	det := l1landmarks.DetectorFunc(func(ctx context.Context, _ l1landmarks.FrameHandle, ts float64) (l1landmarks.Frame, error) {
		calls++
		if calls > 1 {
			entered <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
				return l1landmarks.Frame{}, ctx.Err()
			}
		}
		return testutil.Frame(35, 40, ts), nil
	})

	clock := timeutil.NewMockClock(t0)
	sched, err := pipeline.NewScheduler(det, pipeline.NewPublisher(), pipeline.DefaultConfig(), clock)
	require.NoError(t, err)
	src := &stepSource{cursor: 40 * time.Millisecond}
	sched.Attach(src)
	require.True(t, sched.Tick(context.Background()))

	src.advance(40 * time.Millisecond)
	stalled := make(chan bool)
	go func() { stalled <- sched.Tick(context.Background()) }()
	<-entered

	s, err := New(sched.Publisher(), Config{Interval: 10 * time.Millisecond, Duration: 100 * time.Millisecond}, clock)
	require.NoError(t, err)
	_, err = s.Start("P01")
	require.NoError(t, err)

	const n = 5
	for i := 0; i < n; i++ {
		require.True(t, s.Tick())
	}
	assert.Equal(t, n, s.Progress().Recorded)

	sess, err := s.Cancel()
	require.NoError(t, err)
	require.Len(t, sess.Records, n)
	for _, rec := range sess.Records {
		assert.True(t, rec.Valid)
		assert.Equal(t, 40.0, rec.SourceTimestampMs)
	}

	close(release)
	assert.True(t, <-stalled)
}
