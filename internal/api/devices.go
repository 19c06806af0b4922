package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-sim-core/internal/device"
	"github.com/nerrad567/gray-sim-core/internal/engine"
)

// deviceSummary is the JSON shape of a device in list and detail responses.
type deviceSummary struct {
	Name      string             `json:"name"`
	Model     string             `json:"model"`
	State     string             `json:"state"`
	Connected bool               `json:"connected"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// newDeviceSummary builds the list-view shape (no parameter values).
func newDeviceSummary(d *device.Device) deviceSummary {
	return deviceSummary{
		Name:      d.Name(),
		Model:     d.Model(),
		State:     string(d.State()),
		Connected: d.Connected(),
	}
}

// lookupDevice resolves the {name} URL parameter to a device, writing a 404
// response if it does not exist.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	name := chi.URLParam(r, "name")
	d, err := s.engine.Device(name)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownDevice) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		writeInternalError(w, "failed to look up device")
		return nil, false
	}
	return d, true
}

// handleListDevices returns all simulated devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.engine.Devices()
	out := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		out = append(out, newDeviceSummary(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns a single device with its parameter values.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	summary := newDeviceSummary(d)
	summary.Params = d.Snapshot()
	writeJSON(w, http.StatusOK, summary)
}

// handleListParams returns all parameter values of a device.
func (s *Server) handleListParams(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	params := d.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"params": params, "count": len(params)})
}

// handleGetParam returns a single parameter value.
func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "param")
	value, err := d.Get(name)
	if err != nil {
		writeNotFound(w, "parameter not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": value})
}

// handleSetParam writes a parameter value through the device's validator.
//
// Body: {"value": 42.5}
func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var body struct {
		Value float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	name := chi.URLParam(r, "param")
	if err := d.Set(name, body.Value); err != nil {
		switch {
		case errors.Is(err, device.ErrUnknownParameter):
			writeNotFound(w, "parameter not found")
		case errors.Is(err, device.ErrValidation):
			writeValidationError(w, err.Error())
		default:
			writeInternalError(w, "failed to set parameter")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": body.Value})
}

// handleCallCommand invokes a named device command.
//
// Body (optional): {"args": [1, 2, 3]}
func (s *Server) handleCallCommand(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var body struct {
		Args []float64 `json:"args"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	name := chi.URLParam(r, "command")
	result, err := d.Call(name, body.Args...)
	if err != nil {
		if errors.Is(err, device.ErrUnknownCommand) {
			writeNotFound(w, "command not found")
			return
		}
		writeValidationError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"command": name, "result": result})
}

// handleConnectDevice restores a device's adapter visibility.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	d.SetConnected(true)
	writeJSON(w, http.StatusOK, newDeviceSummary(d))
}

// handleDisconnectDevice hides a device from protocol adapters while its
// simulation keeps running.
func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	d.SetConnected(false)
	writeJSON(w, http.StatusOK, newDeviceSummary(d))
}
