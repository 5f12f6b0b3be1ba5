package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/bambi-core/internal/actuator"
	"github.com/nerrad567/bambi-core/internal/bot"
	"github.com/nerrad567/bambi-core/internal/door"
	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
	"github.com/nerrad567/bambi-core/internal/joblog"
	"github.com/nerrad567/bambi-core/internal/material"
)

const (
	// healthCheckTimeout bounds each component probe.
	healthCheckTimeout = 2 * time.Second

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// servoRequest is the body of PUT /servo.
type servoRequest struct {
	Open  *int `json:"open"`
	Close *int `json:"close"`
}

// handleHealth reports ok when every registered component is healthy and
// degraded (503) otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.health))
	healthy := true
	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			healthy = false
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleDoorOpen(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.OpenDoor(r.Context()); err != nil {
		s.writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"command": actuator.CmdOpen})
}

func (s *Server) handleDoorClose(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.CloseDoor(r.Context()); err != nil {
		s.writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"command": actuator.CmdClose})
}

func (s *Server) handleGetServo(w http.ResponseWriter, r *http.Request) {
	servo, err := s.controller.Servo(r.Context())
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servo)
}

func (s *Server) handleSetServo(w http.ResponseWriter, r *http.Request) {
	var req servoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Open == nil || req.Close == nil {
		writeValidation(w, "open and close are required")
		return
	}

	if err := s.controller.SaveServo(r.Context(), *req.Open, *req.Close); err != nil {
		s.writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, config.ServoConfig{Open: *req.Open, Close: *req.Close})
}

func (s *Server) handleBotRun(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StartBot(r.Context()); err != nil {
		s.writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleGetMaterials(w http.ResponseWriter, r *http.Request) {
	m, err := s.controller.Materials(r.Context())
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleSetMaterials(w http.ResponseWriter, r *http.Request) {
	var m config.MaterialsConfig
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.controller.SetMaterials(r.Context(), m); err != nil {
		s.writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "job history not available")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	events, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing job history", "error", err)
		writeInternalError(w, "failed to list job history")
		return
	}
	if events == nil {
		events = []joblog.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// writeControllerError maps controller errors onto HTTP responses.
func (s *Server) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, actuator.ErrLinkDown):
		writeError(w, http.StatusServiceUnavailable, ErrCodeLinkDown, "actuator link is not connected")
	case errors.Is(err, actuator.ErrInvalidAngle),
		errors.Is(err, material.ErrInvalidProfile),
		errors.Is(err, material.ErrUnknownActiveProfile):
		writeValidation(w, err.Error())
	case errors.Is(err, bot.ErrRunInProgress):
		writeConflict(w, "a bot run is already in progress")
	case errors.Is(err, bot.ErrEmptySequence):
		writeConflict(w, "no bot sequence configured")
	case errors.Is(err, door.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "controller unavailable")
	default:
		s.logger.Error("controller request failed", "error", err)
		writeInternalError(w, "request failed")
	}
}
