package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/banshee-data/abduction.report/internal/api"
	"github.com/banshee-data/abduction.report/internal/config"
	"github.com/banshee-data/abduction.report/internal/monitoring"
	"github.com/banshee-data/abduction.report/internal/pose/detector"
	"github.com/banshee-data/abduction.report/internal/pose/export"
	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/pipeline"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/pose/storage/sqlite"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

var logf = monitoring.Component("abduction")

// detectorSetup pairs the detector with the source whose cursor drives it.
type detectorSetup struct {
	name     string
	detector l1landmarks.Detector
	source   l1landmarks.Source
	close    func() error
}

func noClose() error { return nil }

// newDetector selects a replay file, a remote gRPC detector or the
// synthetic generator, in that order of precedence.
func newDetector(addr, replay string, seed int64, fps float64, clock timeutil.Clock) (*detectorSetup, error) {
	switch {
	case addr != "" && replay != "":
		return nil, errors.New("--detector-addr and --replay are mutually exclusive")
	case replay != "":
		r, err := detector.OpenReplay(replay, clock)
		if err != nil {
			return nil, err
		}
		return &detectorSetup{name: "replay", detector: r, source: r, close: noClose}, nil
	case addr != "":
		if fps <= 0 {
			return nil, fmt.Errorf("--fps must be positive, got %v", fps)
		}
		remote, err := detector.DialRemote(addr)
		if err != nil {
			return nil, err
		}
		src := detector.NewClockSource("camera", clock, fps)
		return &detectorSetup{name: "remote " + addr, detector: remote, source: src, close: remote.Close}, nil
	default:
		if fps <= 0 {
			return nil, fmt.Errorf("--fps must be positive, got %v", fps)
		}
		gen := detector.NewSyntheticGenerator(seed)
		src := detector.NewClockSource("synthetic", clock, fps)
		return &detectorSetup{name: "synthetic", detector: gen, source: src, close: noClose}, nil
	}
}

// chainFinalizers runs each non-nil sink in order.
func chainFinalizers(fns ...sampler.FinalizeFunc) sampler.FinalizeFunc {
	var sinks []sampler.FinalizeFunc
	for _, fn := range fns {
		if fn != nil {
			sinks = append(sinks, fn)
		}
	}
	return func(sess *sampler.Session) {
		for _, fn := range sinks {
			fn(sess)
		}
	}
}

func exportSink(w *export.Writer) sampler.FinalizeFunc {
	return func(sess *sampler.Session) {
		path, err := w.Write(sess)
		if err != nil {
			logf("failed to export session %s: %v", sess.ID, err)
			return
		}
		logf("exported session %s to %s", sess.ID, path)
	}
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// configureLogging routes the pipeline and sampler streams. Ops messages
// always go to w; diag and trace are opt-in.
func configureLogging(w io.Writer, verbose, trace bool) {
	var diag, tr io.Writer
	if verbose || trace {
		diag = w
	}
	if trace {
		tr = w
	}
	pipeline.SetLogWriters(w, diag, tr)
	sampler.SetLogWriters(w, diag, tr)
}

// app holds the running components of one process.
type app struct {
	tuning *config.TuningConfig
	det    *detectorSetup
	sched  *pipeline.Scheduler
	rec    *sampler.Sampler
	store  *sqlite.Store // nil when storage is disabled
	server *api.Server
}

func newApp(tuning *config.TuningConfig, det *detectorSetup, store *sqlite.Store, exports *export.Writer, clock timeutil.Clock) (*app, error) {
	sched, err := pipeline.NewScheduler(det.detector, pipeline.NewPublisher(), tuning.PipelineConfig(), clock)
	if err != nil {
		return nil, err
	}
	sched.Attach(det.source)

	rec, err := sampler.New(sched.Publisher(), tuning.SamplerConfig(), clock)
	if err != nil {
		return nil, err
	}
	var sinks []sampler.FinalizeFunc
	if store != nil {
		sinks = append(sinks, store.Sink())
	}
	if exports != nil {
		sinks = append(sinks, exportSink(exports))
	}
	rec.OnFinalize(chainFinalizers(sinks...))

	server := api.NewServer(sched, rec, store, api.Options{
		Zones:    tuning.GetZones(),
		Units:    tuning.GetAngleUnits(),
		Timezone: tuning.GetTimezone(),
		Format:   tuning.GetExportFormat(),
	})
	return &app{tuning: tuning, det: det, sched: sched, rec: rec, store: store, server: server}, nil
}

// routes mounts the REST API and the loopback-only debug handlers.
func (a *app) routes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.Handle("/api/", api.LoggingMiddleware(a.server.Router()))
	a.server.AttachAdminRoutes(mux, a.tuning.GetRefreshInterval())
	if a.store != nil {
		if err := a.store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// run drives the scheduler and sampler until ctx is done.
func (a *app) run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logf("scheduler stopped: %v", err)
		}
		logf("scheduler routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logf("sampler stopped: %v", err)
		}
		logf("sampler routine terminated")
	}()

	wg.Wait()
}
