package influxdb

import (
	"errors"
	"testing"
	"time"

	"marstek-bridge/internal/infrastructure/config"
	"marstek-bridge/internal/marstek"
	"marstek-bridge/internal/poller"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_BadServer(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1", // nothing listens here
		Token:   "t",
		Org:     "o",
		Bucket:  "b",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestSnapshotPoints_Success(t *testing.T) {
	snap := poller.Snapshot{
		Devices: []marstek.Device{
			{DevID: "d1", Type: "HME-5", SOC: 85, Charge: 1200, CapacityKWh: 5.12},
			{DevID: "d2", Type: "HME-5", SOC: 50, Discharge: 800, CapacityKWh: 10.24},
		},
		LastSuccess:    time.Now(),
		LatencyMS:      412.5,
		TotalEnergyKWh: 9.47,
		TotalPowerW:    400,
	}

	points := snapshotPoints(snap, time.Now())
	if len(points) != 3 {
		t.Fatalf("len(points) = %d, want 2 battery + 1 poll", len(points))
	}
	if points[0].Name() != batteryMeasurement {
		t.Errorf("points[0] measurement = %q, want %q", points[0].Name(), batteryMeasurement)
	}
	if points[2].Name() != pollMeasurement {
		t.Errorf("points[2] measurement = %q, want %q", points[2].Name(), pollMeasurement)
	}

	tags := map[string]string{}
	for _, tag := range points[0].TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["devid"] != "d1" || tags["type"] != "HME-5" {
		t.Errorf("battery tags = %v, want devid/type", tags)
	}
}

func TestSnapshotPoints_FailureSkipsDeviceRows(t *testing.T) {
	snap := poller.Snapshot{
		Devices: []marstek.Device{
			{DevID: "d1", Type: "HME-5"}, // stale from the last good cycle
		},
		LastError:           "network error",
		ConsecutiveFailures: 3,
	}

	points := snapshotPoints(snap, time.Now())
	if len(points) != 1 {
		t.Fatalf("len(points) = %d, want just the poll row", len(points))
	}
	if points[0].Name() != pollMeasurement {
		t.Errorf("measurement = %q, want %q", points[0].Name(), pollMeasurement)
	}

	fields := map[string]interface{}{}
	for _, f := range points[0].FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["success"] != false {
		t.Errorf("success = %v, want false", fields["success"])
	}
	if fields["consecutive_failures"] != int64(3) {
		t.Errorf("consecutive_failures = %v, want 3", fields["consecutive_failures"])
	}
}
