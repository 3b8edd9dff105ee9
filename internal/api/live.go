package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/pipeline"
	"github.com/banshee-data/abduction.report/internal/timeutil"
	"github.com/banshee-data/abduction.report/internal/units"
)

// StateAPI is the JSON view of a PoseState for renderers. Angles are in
// the server's units; geometry is omitted while the state is invalid.
type StateAPI struct {
	Valid       bool                  `json:"valid"`
	Reason      string                `json:"reason,omitempty"`
	Sequence    uint64                `json:"sequence"`
	SourceID    string                `json:"source_id,omitempty"`
	TimestampMs float64               `json:"timestamp_ms"`
	PublishedAt time.Time             `json:"published_at"`
	Units       string                `json:"units"`
	LeftAngle   *float64              `json:"left_angle"`
	RightAngle  *float64              `json:"right_angle"`
	AvgAngle    *float64              `json:"avg_angle"`
	Zone        l3geometry.Zone       `json:"zone"`
	ZoneColor   string                `json:"zone_color"`
	Midline     *MidlineAPI           `json:"midline"`
	Landmarks   *l1landmarks.Skeleton `json:"landmarks"`
}

// MidlineAPI carries the two midpoints and the unit axis in image
// coordinates.
type MidlineAPI struct {
	ShoulderMid [3]float64 `json:"shoulder_mid"`
	HipMid      [3]float64 `json:"hip_mid"`
	Axis        [2]float64 `json:"axis"`
}

func (s *Server) stateToAPI(st *pipeline.PoseState) StateAPI {
	zone := st.Zone
	if zone == "" {
		zone = l3geometry.ZoneUndefined
	}
	out := StateAPI{
		Valid:       st.Valid,
		Reason:      string(st.Reason),
		Sequence:    st.Sequence,
		SourceID:    st.SourceID,
		TimestampMs: st.TimestampMs,
		PublishedAt: st.PublishedAt,
		Units:       s.opts.Units,
		LeftAngle:   s.angle(st.Angles.Left),
		RightAngle:  s.angle(st.Angles.Right),
		AvgAngle:    s.angle(st.Angles.Average),
		Zone:        zone,
		ZoneColor:   zone.Color(),
		Landmarks:   st.Landmarks,
	}
	if m := st.Midline; m != nil {
		out.Midline = &MidlineAPI{
			ShoulderMid: [3]float64{m.ShoulderMid.X, m.ShoulderMid.Y, m.ShoulderMid.Z},
			HipMid:      [3]float64{m.HipMid.X, m.HipMid.Y, m.HipMid.Z},
			Axis:        [2]float64{m.Axis.X, m.Axis.Y},
		}
	}
	return out
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stateToAPI(s.sched.Publisher().Current()))
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		State  string         `json:"state"`
		Source string         `json:"source,omitempty"`
		Stats  pipeline.Stats `json:"stats"`
	}{
		State: s.sched.State().String(),
		Stats: s.sched.Stats(),
	}
	if src := s.sched.Source(); src != nil {
		resp.Source = src.ID()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.rec.Config()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"units":       s.opts.Units,
		"timezone":    units.TimezoneLabel(s.opts.Timezone, time.Now()),
		"zones":       s.opts.Zones,
		"interval_ms": timeutil.Millis(cfg.Interval),
		"duration_ms": timeutil.Millis(cfg.Duration),
		"samples":     cfg.Target(),
		"format":      s.opts.Format,
	})
}

// AttachAdminRoutes adds a server-sent event stream of published states
// to the tsweb debug handler.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux, refresh time.Duration) {
	debug := tsweb.Debugger(mux)
	debug.HandleSilentFunc("pose-tail", func(w http.ResponseWriter, r *http.Request) {
		s.tailStates(w, r, refresh)
	})
}

// tailStates streams each new PoseState as an SSE event until the client
// goes away.
func (s *Server) tailStates(w http.ResponseWriter, r *http.Request, refresh time.Duration) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	if refresh <= 0 {
		refresh = pipeline.DefaultRefreshInterval
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	var lastSeq uint64
	first := true
	for {
		st := s.sched.Publisher().Current()
		if first || st.Sequence != lastSeq {
			b, err := json.Marshal(s.stateToAPI(st))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
			lastSeq, first = st.Sequence, false
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
