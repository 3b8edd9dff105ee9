package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/abduction.report/internal/fsutil"
	"github.com/banshee-data/abduction.report/internal/pose/export"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/report"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/pose/storage/sqlite"
	"github.com/banshee-data/abduction.report/internal/testutil"
)

func seed(t *testing.T, sessions ...*sampler.Session) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	for _, s := range sessions {
		require.NoError(t, store.SaveSession(context.Background(), s))
	}
	return store
}

func session(id, subject string, at time.Time) *sampler.Session {
	sess := &sampler.Session{
		ID:         id,
		SubjectID:  subject,
		StartedAt:  at,
		EndedAt:    at.Add(40 * time.Millisecond),
		IntervalMs: 10,
		DurationMs: 40,
		Status:     sampler.StatusComplete,
	}
	for i := 0; i < 4; i++ {
		skel := testutil.Skeleton(30+float64(i), 40)
		mid, angles := l3geometry.Measure(skel)
		sess.Records = append(sess.Records, sampler.SampleRecord{
			Index:      i,
			OffsetMs:   float64(i) * 10,
			SubjectID:  subject,
			CapturedAt: at.Add(time.Duration(i) * 10 * time.Millisecond),
			Valid:      true,
			Quality:    sampler.QualityOK,
			Angles:     angles,
			Midline:    &mid,
			Landmarks:  &skel,
		})
	}
	return sess
}

func TestReporter_List(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := seed(t, session("a", "P01", at), session("b", "P02", at.Add(time.Hour)))

	var out bytes.Buffer
	r := &reporter{store: store, fs: fsutil.NewMemoryFileSystem(), out: &out}
	require.NoError(t, r.run(context.Background(), options{Limit: 10}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "b "), lines[1])
	assert.Contains(t, lines[2], "2026-03-01T09:00:00Z")

	out.Reset()
	require.NoError(t, r.run(context.Background(), options{Subject: "P01"}))
	assert.NotContains(t, out.String(), "P02")
}

func TestReporter_Render(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := seed(t, session("abc", "P01", at))
	mem := fsutil.NewMemoryFileSystem()

	var out bytes.Buffer
	r := &reporter{store: store, fs: mem, out: &out}
	err := r.run(context.Background(), options{
		ID:        "abc",
		Timezone:  "UTC",
		Zones:     l3geometry.DefaultZones(),
		OutDir:    "/reports",
		PNG:       true,
		HTML:      true,
		Export:    true,
		Format:    export.FormatCSV,
		Summarise: true,
	})
	require.NoError(t, err)

	var sum report.Summary
	require.NoError(t, json.NewDecoder(&out).Decode(&sum))
	assert.Equal(t, "abc", sum.SessionID)
	assert.Equal(t, 4, sum.Valid)

	files := mem.Files()
	require.Len(t, files, 3)
	assert.Contains(t, files, "/reports/session_P01_abc.png")
	assert.Contains(t, files, "/reports/session_P01_abc.html")
	assert.Contains(t, files, "/reports/pose_data_P01_2026-03-01T09-00-00-040Z.csv")

	png, err := mem.ReadFile("/reports/session_P01_abc.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestReporter_Missing(t *testing.T) {
	store := seed(t)
	r := &reporter{store: store, fs: fsutil.NewMemoryFileSystem(), out: &bytes.Buffer{}}
	err := r.run(context.Background(), options{ID: "nope"})
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}
