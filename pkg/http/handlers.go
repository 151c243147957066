package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"interview-monitor/pkg/alerting"
	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/monitor"
	"interview-monitor/pkg/session"
	"interview-monitor/pkg/timeline"

	"github.com/gorilla/mux"
)

const maxRequestBody = 1 << 16

type modeRequest struct {
	Mode string `json:"mode"`
}

type timelineResponse struct {
	MonitorID string           `json:"monitor_id"`
	SessionID string           `json:"session_id,omitempty"`
	Entries   []timeline.Entry `json:"entries"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeMode reads an optional {"mode": ...} body. An empty body yields "".
func decodeMode(r *http.Request) (session.Mode, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return "", errors.NewInvalidInput("failed to read request body")
	}
	if len(body) == 0 {
		return "", nil
	}

	var req modeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", errors.NewInvalidInput("malformed JSON body").WithField("cause", err.Error())
	}
	if req.Mode == "" {
		return "", nil
	}
	return session.ParseMode(req.Mode)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*monitor.Monitor, bool) {
	m, err := s.deps.Monitors.Get(mux.Vars(r)["id"])
	if err != nil {
		s.ErrorResponse(w, r, err)
		return nil, false
	}
	return m, true
}

func (s *Server) createMonitor(w http.ResponseWriter, r *http.Request) {
	mode, err := decodeMode(r)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}

	m, err := s.deps.Monitors.Create(mode)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m.State())
}

func (s *Server) listMonitors(w http.ResponseWriter, r *http.Request) {
	monitors := s.deps.Monitors.List()
	states := make([]monitor.State, 0, len(monitors))
	for _, m := range monitors {
		states = append(states, m.State())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitors": states,
		"count":    len(states),
		"active":   s.deps.Monitors.ActiveCount(),
	})
}

func (s *Server) getMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

func (s *Server) deleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Monitors.Remove(mux.Vars(r)["id"]); err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := m.Start(r.Context()); err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

func (s *Server) stopMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	// A release failure is logged by the monitor; the session has ended either way.
	_ = m.Stop()
	writeJSON(w, http.StatusOK, m.State())
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}

	mode, err := decodeMode(r)
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	if mode == "" {
		s.ErrorResponse(w, r, errors.NewInvalidInput("mode is required"))
		return
	}
	if err := m.SetMode(mode); err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{
		MonitorID: m.ID(),
		SessionID: m.State().SessionID,
		Entries:   m.Timeline(),
	})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	rep, err := m.Report()
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) getRecording(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data := m.Recording()
	if len(data) == 0 {
		s.ErrorResponse(w, r, errors.NewNotFound("no recording available", map[string]interface{}{
			"monitor_id": m.ID(),
		}))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+m.ID()+".webm\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.ErrorResponse(w, r, errors.Wrap(errors.ErrUnavailable, "session store not configured"))
		return
	}
	records, err := s.deps.Store.List(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": records,
		"count":    len(records),
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.ErrorResponse(w, r, errors.Wrap(errors.ErrUnavailable, "session store not configured"))
		return
	}
	record, err := s.deps.Store.Load(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		s.ErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	deliveries := []alerting.Delivery{}
	if s.deps.Alerts != nil {
		deliveries = append(deliveries, s.deps.Alerts.GetDeliveries()...)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}
