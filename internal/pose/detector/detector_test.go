package detector

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

var t0 = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

// startServer serves det on an in-memory listener and returns a connected
// Remote.
func startServer(t *testing.T, det l1landmarks.Detector) *Remote {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewServer(det).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	r, err := DialRemote("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCodec_FrameRoundTrip(t *testing.T) {
	g := NewSyntheticGenerator(1)
	g.DropoutRate = 0
	want := g.FrameAt(250)

	s, err := FrameToStruct(want)
	require.NoError(t, err)
	got, err := FrameFromStruct(s)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}

	empty, err := FrameToStruct(l1landmarks.Frame{})
	require.NoError(t, err)
	f, err := FrameFromStruct(empty)
	require.NoError(t, err)
	assert.True(t, f.Empty())
}

func TestCodec_Request(t *testing.T) {
	req, err := NewRequest(1500*time.Millisecond, 1500)
	require.NoError(t, err)
	h, ts := ParseRequest(req)
	assert.Equal(t, 1500.0, ts)
	assert.Equal(t, 1500.0, h)

	req, err = NewRequest("frame-0007", 7)
	require.NoError(t, err)
	h, _ = ParseRequest(req)
	assert.Equal(t, "frame-0007", h)

	_, err = NewRequest(struct{ X int }{1}, 0)
	assert.Error(t, err)
}

func TestRemote_DetectsThroughGRPC(t *testing.T) {
	g := NewSyntheticGenerator(7)
	g.DropoutRate = 0
	g.Noise = 0
	r := startServer(t, g)

	frame, err := r.Detect(context.Background(), 2*time.Second, 2000)
	require.NoError(t, err)
	require.Len(t, frame.Landmarks, l1landmarks.NumLandmarks)
	assert.Equal(t, 2000.0, frame.TimestampMs)

	skel, ok := l1landmarks.SkeletonFromFrame(frame)
	require.True(t, ok)
	_, angles := l3geometry.Measure(skel)
	wantL, wantR := g.AnglesAt(2000)
	assert.InDelta(t, wantL, angles.Left.Deg, 1e-6)
	assert.InDelta(t, wantR, angles.Right.Deg, 1e-6)
}

func TestRemote_NoDetection(t *testing.T) {
	r := startServer(t, l1landmarks.DetectorFunc(func(context.Context, l1landmarks.FrameHandle, float64) (l1landmarks.Frame, error) {
		return l1landmarks.Frame{}, nil
	}))
	frame, err := r.Detect(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.True(t, frame.Empty())
}

func TestRemote_DetectorErrorIsInternal(t *testing.T) {
	r := startServer(t, l1landmarks.DetectorFunc(func(context.Context, l1landmarks.FrameHandle, float64) (l1landmarks.Frame, error) {
		return l1landmarks.Frame{}, errors.New("model not loaded")
	}))
	_, err := r.Detect(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRemote_MissingDefaults(t *testing.T) {
	r := startServer(t, l1landmarks.DetectorFunc(func(context.Context, l1landmarks.FrameHandle, float64) (l1landmarks.Frame, error) {
		return l1landmarks.Frame{Landmarks: []l1landmarks.Landmark{{X: 0.1, Y: 0.2, Visibility: 0.5}}}, nil
	}))
	frame, err := r.Detect(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, frame.Landmarks[0].Visibility)
}

func TestDialRemote_NoTarget(t *testing.T) {
	_, err := DialRemote("")
	assert.ErrorIs(t, err, l1landmarks.ErrDetectorInit)
	assert.NoError(t, NewRemote(nil).Close())
}

func TestSynthetic_Deterministic(t *testing.T) {
	a := NewSyntheticGenerator(42).Frames(20, 10*time.Millisecond)
	b := NewSyntheticGenerator(42).Frames(20, 10*time.Millisecond)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different frames:\n%s", diff)
	}
	assert.Equal(t, 190.0, a[19].TimestampMs)
}

func TestSynthetic_AnglesFollowCycle(t *testing.T) {
	g := NewSyntheticGenerator(1)
	l, r := g.AnglesAt(0)
	assert.InDelta(t, g.MinAngle, l, 1e-9)
	assert.InDelta(t, g.MinAngle+g.RightOffset, r, 1e-9)
	l, _ = g.AnglesAt(float64(g.Period/2) / float64(time.Millisecond))
	assert.InDelta(t, g.MaxAngle, l, 1e-9)
}

func TestSynthetic_Dropouts(t *testing.T) {
	g := NewSyntheticGenerator(3)
	g.DropoutRate = 1
	assert.True(t, g.FrameAt(0).Empty())
	assert.Equal(t, uint64(1), g.FrameCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Detect(ctx, nil, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPose_MatchesGeometry(t *testing.T) {
	_, angles := l3geometry.Measure(Pose(25, 40, 1))
	assert.InDelta(t, 25, angles.Left.Deg, 1e-9)
	assert.InDelta(t, 40, angles.Right.Deg, 1e-9)
}

func TestJSONL_RoundTrip(t *testing.T) {
	g := NewSyntheticGenerator(5)
	g.DropoutRate = 0.3
	want := g.Frames(30, 33*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, want))
	got, err := ReadJSONL(&buf)
	require.NoError(t, err)
	require.Len(t, got, 30)
	for i := range want {
		assert.Equal(t, want[i].TimestampMs, got[i].TimestampMs)
		assert.Equal(t, want[i].Empty(), got[i].Empty())
		if !want[i].Empty() {
			assert.Equal(t, want[i].Landmarks, got[i].Landmarks)
		}
	}
}

func TestReadJSONL_DefaultsAndErrors(t *testing.T) {
	frames, err := ReadJSONL(strings.NewReader(`{"timestamp_ms": 5, "landmarks": [{"x": 0.1, "y": 0.2}]}

`))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 1.0, frames[0].Landmarks[0].Visibility)
	assert.Equal(t, 0.0, frames[0].Landmarks[0].Z)

	_, err = ReadJSONL(strings.NewReader("{}\nnot json\n"))
	assert.ErrorContains(t, err, "line 2")
}

func replayFrames() []l1landmarks.Frame {
	return []l1landmarks.Frame{
		{TimestampMs: 1000, Landmarks: []l1landmarks.Landmark{{X: 0.1}}},
		{TimestampMs: 1033, Landmarks: []l1landmarks.Landmark{{X: 0.2}}},
		{TimestampMs: 1066},
		{TimestampMs: 1100, Landmarks: []l1landmarks.Landmark{{X: 0.4}}},
	}
}

func TestReplay_CursorFollowsClock(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r, err := NewReplay("walk", replayFrames(), clock)
	require.NoError(t, err)
	assert.Equal(t, "walk", r.ID())
	assert.Equal(t, 4, r.Len())

	assert.Equal(t, time.Duration(0), r.Cursor())
	assert.Equal(t, 0, r.Handle(r.Cursor()))

	clock.Advance(20 * time.Millisecond)
	assert.Equal(t, time.Duration(0), r.Cursor(), "cursor holds until the next frame is due")

	clock.Advance(13 * time.Millisecond)
	cursor := r.Cursor()
	assert.Equal(t, 33*time.Millisecond, cursor)
	assert.False(t, r.Done(cursor))

	clock.Advance(time.Second)
	assert.Equal(t, 1, r.Handle(cursor), "handle follows the cursor that was read")
	assert.Equal(t, 100*time.Millisecond, r.Cursor())
	assert.True(t, r.Done(r.Cursor()))
}

func TestReplay_Detect(t *testing.T) {
	r, err := NewReplay("walk", replayFrames(), timeutil.NewMockClock(t0))
	require.NoError(t, err)

	f, err := r.Detect(context.Background(), 1, 33)
	require.NoError(t, err)
	assert.Equal(t, 33.0, f.TimestampMs)
	assert.Equal(t, 0.2, f.Landmarks[0].X)

	f, err = r.Detect(context.Background(), 66*time.Millisecond, 66)
	require.NoError(t, err)
	assert.True(t, f.Empty())

	_, err = r.Detect(context.Background(), 9, 0)
	assert.Error(t, err)
}

func TestReplay_DetectByTimestamp(t *testing.T) {
	r, err := NewReplay("walk", replayFrames(), timeutil.NewMockClock(t0))
	require.NoError(t, err)

	for _, tc := range []struct {
		ts    float64
		wantX float64
	}{
		{0, 0.1},
		{32.9, 0.1},
		{33, 0.2},
		{50, 0.2},
		{100, 0.4},
		{5000, 0.4},
	} {
		f, err := r.Detect(context.Background(), tc.ts, tc.ts)
		require.NoError(t, err, "ts=%v", tc.ts)
		require.Len(t, f.Landmarks, 1, "ts=%v", tc.ts)
		assert.Equal(t, tc.wantX, f.Landmarks[0].X, "ts=%v", tc.ts)
		assert.Equal(t, tc.ts, f.TimestampMs)
	}

	f, err := r.Detect(context.Background(), "frame-x", 70)
	require.NoError(t, err)
	assert.True(t, f.Empty())
}

func TestReplay_ServedToCameraClient(t *testing.T) {
	g := NewSyntheticGenerator(9)
	g.DropoutRate = 0
	g.Noise = 0
	frames := g.Frames(30, time.Second/30)
	r, err := NewReplay("walk", frames, nil)
	require.NoError(t, err)
	remote := startServer(t, r)

	clock := timeutil.NewMockClock(t0)
	cam := NewClockSource("camera", clock, 30)
	for _, step := range []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 5 * time.Second} {
		clock.Advance(step)
		cursor := cam.Cursor()
		ts := timeutil.Millis(cursor)
		f, err := remote.Detect(context.Background(), cam.Handle(cursor), ts)
		require.NoError(t, err, "cursor=%v", cursor)
		require.Len(t, f.Landmarks, l1landmarks.NumLandmarks)
		assert.Equal(t, ts, f.TimestampMs)

		want := frames[r.indexAt(cursor)]
		assert.Equal(t, want.Landmarks, f.Landmarks, "cursor=%v", cursor)
	}
}

func TestNewReplay_Rejects(t *testing.T) {
	_, err := NewReplay("x", nil, nil)
	assert.Error(t, err)
	_, err = NewReplay("x", []l1landmarks.Frame{{TimestampMs: 10}, {TimestampMs: 5}}, nil)
	assert.Error(t, err)
}

func TestOpenReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session-a.jsonl")
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, replayFrames()))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	r, err := OpenReplay(path, timeutil.NewMockClock(t0))
	require.NoError(t, err)
	assert.Equal(t, "session-a", r.ID())

	_, err = OpenReplay(filepath.Join(dir, "missing.jsonl"), nil)
	assert.ErrorIs(t, err, l1landmarks.ErrDetectorInit)

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = OpenReplay(empty, nil)
	assert.ErrorIs(t, err, l1landmarks.ErrDetectorInit)
}

func TestClockSource(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	s := NewClockSource("cam0", clock, 25)
	assert.Equal(t, "cam0", s.ID())
	assert.Equal(t, time.Duration(0), s.Cursor())

	clock.Advance(39 * time.Millisecond)
	assert.Equal(t, time.Duration(0), s.Cursor())
	clock.Advance(time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, s.Cursor())
	assert.Equal(t, 40*time.Millisecond, s.Handle(s.Cursor()))

	assert.Equal(t, time.Second/30, NewClockSource("x", nil, 0).period)
}
