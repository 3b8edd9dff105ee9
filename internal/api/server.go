package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/banshee-data/abduction.report/internal/httputil"
	"github.com/banshee-data/abduction.report/internal/pose/export"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/pipeline"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/pose/storage/sqlite"
	"github.com/banshee-data/abduction.report/internal/units"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Options configures a Server.
type Options struct {
	Zones    l3geometry.Zones
	Units    string // angle units for JSON responses: deg or rad
	Timezone string // display timezone for reports; "" is UTC
	Format   export.Format
}

// Server exposes the live pose state, recording control and stored
// sessions over HTTP.
type Server struct {
	sched *pipeline.Scheduler
	rec   *sampler.Sampler
	store *sqlite.Store // optional
	opts  Options
}

// NewServer returns a server. store may be nil, in which case only the
// last finalized session is available for export.
func NewServer(sched *pipeline.Scheduler, rec *sampler.Sampler, store *sqlite.Store, opts Options) *Server {
	if opts.Units == "" {
		opts.Units = units.Degrees
	}
	if opts.Format == "" {
		opts.Format = export.FormatJSON
	}
	if opts.Zones == (l3geometry.Zones{}) {
		opts.Zones = l3geometry.DefaultZones()
	}
	return &Server{sched: sched, rec: rec, store: store, opts: opts}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Router returns the API handler. Request logging is left to the caller
// so tests stay quiet.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.showState)
		r.Get("/stats", s.showStats)
		r.Get("/config", s.showConfig)

		r.Route("/recording", func(r chi.Router) {
			r.Get("/", s.showProgress)
			r.Post("/start", s.startRecording)
			r.Post("/stop", s.stopRecording)
			r.Get("/last/export", s.exportLast)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.showSession)
				r.Delete("/", s.deleteSession)
				r.Put("/notes", s.updateNotes)
				r.Get("/export", s.exportSession)
				r.Get("/plot.png", s.plotSession)
				r.Get("/chart", s.chartSession)
			})
		})
	})
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

// angle converts a defined angle to the configured units; undefined
// angles stay nil.
func (s *Server) angle(a l3geometry.Angle) *float64 {
	if !a.Defined {
		return nil
	}
	places := units.AnglePlaces
	if s.opts.Units == units.Radians {
		places = units.CoordinatePlaces
	}
	v := units.Round(units.ConvertAngle(a.Deg, s.opts.Units), places)
	return &v
}
