package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marstek-bridge/internal/infrastructure/logging"
	"marstek-bridge/internal/marstek"
	"marstek-bridge/internal/poller"
	"marstek-bridge/internal/settings"
)

type fakeSource struct {
	snap poller.Snapshot
}

func (f *fakeSource) Snapshot() poller.Snapshot {
	return f.snap
}

type fakeStore struct {
	overrides map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{overrides: make(map[string]float64)}
}

func (f *fakeStore) Get(_ context.Context, devID string) (*settings.CapacityOverride, error) {
	kwh, ok := f.overrides[devID]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return &settings.CapacityOverride{DevID: devID, CapacityKWh: kwh}, nil
}

func (f *fakeStore) Set(_ context.Context, devID string, capacityKWh float64) error {
	if capacityKWh < settings.MinCapacityKWh || capacityKWh > settings.MaxCapacityKWh {
		return fmt.Errorf("%.3f kWh: %w", capacityKWh, settings.ErrInvalidCapacity)
	}
	f.overrides[devID] = capacityKWh
	return nil
}

func (f *fakeStore) Delete(_ context.Context, devID string) error {
	if _, ok := f.overrides[devID]; !ok {
		return settings.ErrNotFound
	}
	delete(f.overrides, devID)
	return nil
}

func (f *fakeStore) All(_ context.Context) (map[string]float64, error) {
	return f.overrides, nil
}

type fakeCheck struct {
	err error
}

func (f *fakeCheck) HealthCheck(_ context.Context) error {
	return f.err
}

func healthySnapshot() poller.Snapshot {
	return poller.Snapshot{
		Devices: []marstek.Device{
			{DevID: "d1", Name: "Garage", Type: "HME-5", SOC: 85, Charge: 1200, CapacityKWh: 5.12},
			{DevID: "d2", Name: "Shed", Type: "HME-5", SOC: 50, Discharge: 800, CapacityKWh: 10.24},
		},
		LastSuccess:    time.Now().UTC(),
		LatencyMS:      412.5,
		TotalEnergyKWh: 9.47,
		TotalPowerW:    400,
	}
}

func newTestServer(t *testing.T, snap poller.Snapshot, store settings.Store, checks map[string]HealthChecker) (*httptest.Server, *fakeStore) {
	t.Helper()

	fs, _ := store.(*fakeStore)
	if store == nil {
		fs = newFakeStore()
		store = fs
	}

	s, err := New(Deps{
		Logger:   logging.Default(),
		Poller:   &fakeSource{snap: snap},
		Settings: store,
		Checks:   checks,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(s.buildRouter())
	t.Cleanup(ts.Close)
	return ts, fs
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec // test-local URL
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return body
}

func TestHealth_OK(t *testing.T) {
	ts, _ := newTestServer(t, healthySnapshot(), nil, map[string]HealthChecker{
		"database": &fakeCheck{},
	})

	body := getJSON(t, ts.URL+"/api/v1/health", http.StatusOK)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	components := body["components"].(map[string]any)
	if components["database"] != "ok" {
		t.Errorf("database component = %v, want ok", components["database"])
	}
}

func TestHealth_DegradedOnPollFailure(t *testing.T) {
	snap := healthySnapshot()
	snap.LastError = "network error"
	snap.ConsecutiveFailures = 3
	ts, _ := newTestServer(t, snap, nil, nil)

	body := getJSON(t, ts.URL+"/api/v1/health", http.StatusServiceUnavailable)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestHealth_DegradedOnComponentFailure(t *testing.T) {
	ts, _ := newTestServer(t, healthySnapshot(), nil, map[string]HealthChecker{
		"mqtt": &fakeCheck{err: errors.New("mqtt: client not connected")},
	})

	body := getJSON(t, ts.URL+"/api/v1/health", http.StatusServiceUnavailable)
	components := body["components"].(map[string]any)
	if !strings.Contains(components["mqtt"].(string), "not connected") {
		t.Errorf("mqtt component = %v, want error detail", components["mqtt"])
	}
}

func TestListDevices(t *testing.T) {
	ts, _ := newTestServer(t, healthySnapshot(), nil, nil)

	body := getJSON(t, ts.URL+"/api/v1/devices", http.StatusOK)
	if body["count"] != 2.0 {
		t.Fatalf("count = %v, want 2", body["count"])
	}

	devices := body["devices"].([]any)
	first := devices[0].(map[string]any)
	if first["devid"] != "d1" {
		t.Errorf("devid = %v, want d1", first["devid"])
	}
	// Derived: 85% of 5.12 kWh.
	if first["energy_kwh"] != 4.35 {
		t.Errorf("energy_kwh = %v, want 4.35", first["energy_kwh"])
	}
}

func TestGetDevice(t *testing.T) {
	ts, _ := newTestServer(t, healthySnapshot(), nil, nil)

	body := getJSON(t, ts.URL+"/api/v1/devices/d2", http.StatusOK)
	if body["devid"] != "d2" {
		t.Errorf("devid = %v, want d2", body["devid"])
	}

	errBody := getJSON(t, ts.URL+"/api/v1/devices/nope", http.StatusNotFound)
	if errBody["code"] != "not_found" {
		t.Errorf("code = %v, want not_found", errBody["code"])
	}
}

func TestSummary(t *testing.T) {
	ts, _ := newTestServer(t, healthySnapshot(), nil, nil)

	body := getJSON(t, ts.URL+"/api/v1/summary", http.StatusOK)
	if body["device_count"] != 2.0 {
		t.Errorf("device_count = %v, want 2", body["device_count"])
	}
	if body["total_power_w"] != 400.0 {
		t.Errorf("total_power_w = %v, want 400", body["total_power_w"])
	}
	if body["healthy"] != true {
		t.Errorf("healthy = %v, want true", body["healthy"])
	}
}

func TestSetCapacity(t *testing.T) {
	ts, store := newTestServer(t, healthySnapshot(), nil, nil)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/devices/d1/capacity",
		bytes.NewBufferString(`{"capacity_kwh": 10.24}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if store.overrides["d1"] != 10.24 {
		t.Errorf("stored override = %v, want 10.24", store.overrides["d1"])
	}
}

func TestSetCapacity_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "out of range", body: `{"capacity_kwh": 500}`},
		{name: "zero", body: `{"capacity_kwh": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, healthySnapshot(), nil, nil)

			req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/devices/d1/capacity",
				bytes.NewBufferString(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("PUT error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestDeleteCapacity(t *testing.T) {
	store := newFakeStore()
	store.overrides["d1"] = 10.24
	ts, _ := newTestServer(t, healthySnapshot(), store, nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/devices/d1/capacity", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	// Second delete finds nothing.
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, healthySnapshot(), nil, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	body := string(raw)

	for _, want := range []string{
		`marstek_battery_soc_percent{devid="d1",name="Garage",type="HME-5"} 85`,
		"marstek_poll_success 1",
		"marstek_device_count 2",
		"marstek_total_power_watts 400",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts, _ := newTestServer(t, healthySnapshot(), nil, nil)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}
