// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Fixture geometry for a subject facing the camera, in normalised image
// coordinates (Y grows downwards). The subject's left side appears on the
// right of the image.
const (
	ShoulderY     = 0.30
	HipY          = 0.60
	ShoulderHalfW = 0.06
	HipHalfW      = 0.04
	ThighLength   = 0.25
	CentreX       = 0.50
	Visibility    = 0.95
)

// Skeleton returns the six measured landmarks of an upright subject whose
// thighs are abducted by leftDeg and rightDeg from the body midline.
func Skeleton(leftDeg, rightDeg float64) l1landmarks.Skeleton {
	lm := func(x, y float64) l1landmarks.Landmark {
		return l1landmarks.Landmark{X: x, Y: y, Visibility: Visibility}
	}
	lr := leftDeg * math.Pi / 180
	rr := rightDeg * math.Pi / 180
	lHipX, rHipX := CentreX+HipHalfW, CentreX-HipHalfW
	return l1landmarks.Skeleton{
		LeftShoulder:  lm(CentreX+ShoulderHalfW, ShoulderY),
		RightShoulder: lm(CentreX-ShoulderHalfW, ShoulderY),
		LeftHip:       lm(lHipX, HipY),
		RightHip:      lm(rHipX, HipY),
		LeftKnee:      lm(lHipX+ThighLength*math.Sin(lr), HipY+ThighLength*math.Cos(lr)),
		RightKnee:     lm(rHipX-ThighLength*math.Sin(rr), HipY+ThighLength*math.Cos(rr)),
	}
}

// FrameFromSkeleton places a skeleton into a full 33-landmark detector
// frame. Unmeasured landmarks sit at the image centre.
func FrameFromSkeleton(s l1landmarks.Skeleton, timestampMs float64) l1landmarks.Frame {
	lm := make([]l1landmarks.Landmark, l1landmarks.NumLandmarks)
	for i := range lm {
		lm[i] = l1landmarks.Landmark{X: CentreX, Y: 0.5, Visibility: Visibility}
	}
	for i, p := range s.Points() {
		lm[l1landmarks.RequiredIndices[i]] = p
	}
	return l1landmarks.Frame{TimestampMs: timestampMs, Landmarks: lm}
}

// Frame returns a full detector frame for the given abduction angles.
func Frame(leftDeg, rightDeg, timestampMs float64) l1landmarks.Frame {
	return FrameFromSkeleton(Skeleton(leftDeg, rightDeg), timestampMs)
}
