package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/gray-sim-core/internal/engine"
)

// simulationStatus is the JSON shape of the simulation status response.
type simulationStatus struct {
	State        string  `json:"state"`
	Cycles       uint64  `json:"cycles"`
	Runtime      float64 `json:"runtime"`
	Uptime       float64 `json:"uptime"`
	Speed        float64 `json:"speed"`
	CycleDelayMS int64   `json:"cycle_delay_ms"`
}

// newSimulationStatus converts an engine status snapshot to the API shape.
func newSimulationStatus(st engine.Status) simulationStatus {
	return simulationStatus{
		State:        string(st.State),
		Cycles:       st.Cycles,
		Runtime:      st.Runtime,
		Uptime:       st.Uptime,
		Speed:        st.Speed,
		CycleDelayMS: st.CycleDelay.Milliseconds(),
	}
}

// handleSimulationStatus returns the current engine status.
func (s *Server) handleSimulationStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newSimulationStatus(s.engine.Status()))
}

// handlePause pauses the simulation loop.
func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.Pause(); err != nil {
		writeConflict(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSimulationStatus(s.engine.Status()))
}

// handleResume resumes a paused simulation loop.
func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.Resume(); err != nil {
		writeConflict(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSimulationStatus(s.engine.Status()))
}

// handleStop requests a clean stop of the simulation loop.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.Stop(); err != nil {
		writeConflict(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSimulationStatus(s.engine.Status()))
}

// handleSetSpeed updates the simulation speed factor.
//
// Body: {"speed": 2.0}
func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.SetSpeed(body.Speed); err != nil {
		if errors.Is(err, engine.ErrInvalidSpeed) {
			writeValidationError(w, "speed must be a positive finite number")
			return
		}
		writeInternalError(w, "failed to set speed")
		return
	}

	writeJSON(w, http.StatusOK, newSimulationStatus(s.engine.Status()))
}

// handleSetCycleDelay updates the wall-clock delay between cycle starts.
//
// Body: {"cycle_delay_ms": 100}
func (s *Server) handleSetCycleDelay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CycleDelayMS int64 `json:"cycle_delay_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	delay := time.Duration(body.CycleDelayMS) * time.Millisecond
	if err := s.engine.SetCycleDelay(delay); err != nil {
		if errors.Is(err, engine.ErrInvalidCycleDelay) {
			writeValidationError(w, "cycle_delay_ms must not be negative")
			return
		}
		writeInternalError(w, "failed to set cycle delay")
		return
	}

	writeJSON(w, http.StatusOK, newSimulationStatus(s.engine.Status()))
}
