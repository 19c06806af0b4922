package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-sim-core/internal/journal"
)

// journalQuery extracts the shared device/limit query parameters.
func journalQuery(r *http.Request) (device string, limit int) {
	device = r.URL.Query().Get("device")
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return device, limit
}

// handleListTransitions returns recent state transitions from the run journal.
//
// Query parameters:
//   - device: filter by device name
//   - limit: maximum entries to return (default 50, max 200)
func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not enabled")
		return
	}

	device, limit := journalQuery(r)
	entries, err := s.journal.Transitions(r.Context(), device, limit)
	if err != nil {
		if errors.Is(err, journal.ErrNoRun) {
			writeConflict(w, "no active run")
			return
		}
		writeInternalError(w, "failed to query transitions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      s.journal.RunID(),
		"transitions": entries,
		"count":       len(entries),
	})
}

// handleListSnapshots returns recent parameter snapshots from the run journal.
//
// Query parameters:
//   - device: filter by device name
//   - limit: maximum entries to return (default 50, max 200)
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not enabled")
		return
	}

	device, limit := journalQuery(r)
	entries, err := s.journal.Snapshots(r.Context(), device, limit)
	if err != nil {
		if errors.Is(err, journal.ErrNoRun) {
			writeConflict(w, "no active run")
			return
		}
		writeInternalError(w, "failed to query snapshots")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":    s.journal.RunID(),
		"snapshots": entries,
		"count":     len(entries),
	})
}
