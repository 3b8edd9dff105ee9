package report

import (
	"bytes"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/testutil"
)

var started = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

// session has records at left/right angle pairs; a negative left angle
// marks an invalid record.
func session(pairs ...[2]float64) *sampler.Session {
	sess := &sampler.Session{
		ID:         "sess",
		SubjectID:  "P07",
		StartedAt:  started,
		EndedAt:    started.Add(time.Duration(len(pairs)) * 10 * time.Millisecond),
		IntervalMs: 10,
		DurationMs: float64(len(pairs)) * 10,
		Status:     sampler.StatusComplete,
	}
	for i, p := range pairs {
		rec := sampler.SampleRecord{Index: i, OffsetMs: float64(i) * 10, SubjectID: "P07", Quality: "no_detection"}
		if p[0] >= 0 {
			skel := testutil.Skeleton(p[0], p[1])
			mid, angles := l3geometry.Measure(skel)
			rec.Valid = true
			rec.Quality = sampler.QualityOK
			rec.Angles = angles
			rec.Midline = &mid
			rec.Landmarks = &skel
		}
		sess.Records = append(sess.Records, rec)
	}
	return sess
}

func TestSummarize(t *testing.T) {
	sess := session([2]float64{20, 42}, [2]float64{-1, 0}, [2]float64{30, 50}, [2]float64{40, 60}, [2]float64{50, 68})
	sum, err := Summarize(sess, l3geometry.DefaultZones(), "")
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Records)
	assert.Equal(t, 4, sum.Valid)
	assert.Equal(t, 0.8, sum.ValidFraction)
	assert.Equal(t, "UTC (+00:00)", sum.Timezone)

	assert.Equal(t, 4, sum.Left.Count)
	assert.InDelta(t, 35, sum.Left.Mean, 0.01)
	assert.InDelta(t, 20, sum.Left.Min, 0.01)
	assert.InDelta(t, 50, sum.Left.Max, 0.01)
	assert.InDelta(t, 30, sum.Left.Median, 0.01)
	assert.InDelta(t, 45, sum.Average.Mean, 0.01)
	assert.InDelta(t, 20, sum.Asymmetry, 0.01)

	// Averages are 31, 40, 50, 59.
	assert.Equal(t, map[l3geometry.Zone]int{
		l3geometry.ZoneNominal: 2,
		l3geometry.ZoneCaution: 2,
	}, sum.Zones)
	assert.Equal(t, map[string]int{sampler.QualityOK: 4, "no_detection": 1}, sum.Quality)
}

func TestSummarize_Timezone(t *testing.T) {
	sum, err := Summarize(session([2]float64{30, 30}), l3geometry.DefaultZones(), "Europe/London")
	require.NoError(t, err)
	assert.Equal(t, "Europe/London (+01:00)", sum.Timezone)
	assert.Equal(t, 9, sum.StartedAt.Hour())

	_, err = Summarize(session(), l3geometry.DefaultZones(), "Not/AZone")
	assert.Error(t, err)
}

func TestSummarize_Empty(t *testing.T) {
	sum, err := Summarize(session([2]float64{-1, 0}), l3geometry.DefaultZones(), "")
	require.NoError(t, err)
	assert.Zero(t, sum.Valid)
	assert.Equal(t, AngleStats{}, sum.Average)

	_, err = Summarize(nil, l3geometry.DefaultZones(), "")
	assert.ErrorIs(t, err, sampler.ErrNoSession)
}

func TestSegments(t *testing.T) {
	s := series{offset: []float64{0, 1, 2, 3, 4}, value: []float64{1, nan, 2, 3, nan}}
	segs := segments(s)
	require.Len(t, segs, 2)
	assert.Len(t, segs[0], 1)
	assert.Len(t, segs[1], 2)
	assert.Equal(t, 3.0, segs[1][1].X)
}

func TestWritePNG(t *testing.T) {
	sess := session([2]float64{20, 40}, [2]float64{-1, 0}, [2]float64{30, 50}, [2]float64{35, 45})
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, sess, l3geometry.DefaultZones()))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)

	path := filepath.Join(t.TempDir(), "session.png")
	require.NoError(t, SavePNG(path, session([2]float64{-1, 0}), l3geometry.DefaultZones()))
	assert.FileExists(t, path)
}

func TestWriteHTML(t *testing.T) {
	sess := session([2]float64{20, 40}, [2]float64{-1, 0}, [2]float64{30, 50})
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sess, l3geometry.DefaultZones(), "UTC"))
	html := buf.String()
	assert.Contains(t, html, "Hip abduction - P07")
	assert.Contains(t, html, "nominal max")
	assert.Contains(t, html, `"-"`)
}

func TestHexColor(t *testing.T) {
	c := hexColor("#34a853")
	r, g, b, _ := c.RGBA()
	assert.Equal(t, uint32(0x34), r>>8)
	assert.Equal(t, uint32(0xa8), g>>8)
	assert.Equal(t, uint32(0x53), b>>8)
	assert.NotNil(t, hexColor("bad"))
}
