package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marstek-bridge/internal/marstek"
	"marstek-bridge/internal/settings"
)

// healthCheckTimeout bounds each component check during /health.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports bridge and component health.
// Returns 503 when the last poll cycle failed or a component is down,
// so load balancers and uptime monitors need no body parsing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.poller.Snapshot()

	components := make(map[string]string, len(s.checks))
	healthy := snap.Healthy()
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
		} else {
			components[name] = "ok"
		}
		cancel()
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status":               overall,
		"version":              s.version,
		"poll_healthy":         snap.Healthy(),
		"last_success":         snap.LastSuccess,
		"latency_ms":           snap.LatencyMS,
		"consecutive_failures": snap.ConsecutiveFailures,
		"components":           components,
	})
}

// handleSummary returns the fleet-level snapshot.
func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	snap := s.poller.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"device_count":         len(snap.Devices),
		"total_energy_kwh":     snap.TotalEnergyKWh,
		"total_power_w":        snap.TotalPowerW,
		"healthy":              snap.Healthy(),
		"last_success":         snap.LastSuccess,
		"last_error":           snap.LastError,
		"consecutive_failures": snap.ConsecutiveFailures,
		"latency_ms":           snap.LatencyMS,
	})
}

// deviceResponse is one device in API responses: raw telemetry plus the
// derived figures consumers usually want.
type deviceResponse struct {
	marstek.Device

	EnergyKWh            float64 `json:"energy_kwh"`
	CalculatedChargeW    float64 `json:"calculated_charge_w"`
	CalculatedDischargeW float64 `json:"calculated_discharge_w"`
}

func newDeviceResponse(d marstek.Device) deviceResponse {
	return deviceResponse{
		Device:               d,
		EnergyKWh:            d.EnergyKWh(d.CapacityKWh),
		CalculatedChargeW:    d.CalculatedChargePower(),
		CalculatedDischargeW: d.CalculatedDischargePower(),
	}
}

// handleListDevices returns every device from the latest snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snap := s.poller.Snapshot()

	devices := make([]deviceResponse, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		devices = append(devices, newDeviceResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	devID := chi.URLParam(r, "devid")

	for _, d := range s.poller.Snapshot().Devices {
		if d.DevID == devID {
			writeJSON(w, http.StatusOK, newDeviceResponse(d))
			return
		}
	}
	writeNotFound(w, "device not found: "+devID)
}

// capacityRequest is the PUT body for a capacity override.
type capacityRequest struct {
	CapacityKWh float64 `json:"capacity_kwh"`
}

// handleSetCapacity stores a capacity override for a device.
// The override takes effect on the next poll cycle.
func (s *Server) handleSetCapacity(w http.ResponseWriter, r *http.Request) {
	devID := chi.URLParam(r, "devid")

	var req capacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.settings.Set(r.Context(), devID, req.CapacityKWh); err != nil {
		if errors.Is(err, settings.ErrInvalidCapacity) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("storing capacity override failed", "devid", devID, "error", err)
		writeInternalError(w, "storing capacity override failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devid":        devID,
		"capacity_kwh": req.CapacityKWh,
	})
}

// handleDeleteCapacity removes a capacity override; the device reverts
// to the configured default on the next poll cycle.
func (s *Server) handleDeleteCapacity(w http.ResponseWriter, r *http.Request) {
	devID := chi.URLParam(r, "devid")

	if err := s.settings.Delete(r.Context(), devID); err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			writeNotFound(w, "no capacity override for device: "+devID)
			return
		}
		s.logger.Error("deleting capacity override failed", "devid", devID, "error", err)
		writeInternalError(w, "deleting capacity override failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
