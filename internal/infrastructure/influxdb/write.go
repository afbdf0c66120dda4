package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"marstek-bridge/internal/poller"
)

// Measurement names.
const (
	// batteryMeasurement holds per-device telemetry, tagged by devid
	// and model type.
	batteryMeasurement = "battery"

	// pollMeasurement holds one row per poll cycle: latency, totals and
	// failure bookkeeping. Useful for alerting on cloud flakiness.
	pollMeasurement = "poll"
)

// WriteSnapshot records one poll cycle. Register with the coordinator's
// OnUpdate hook; writes are batched and asynchronous.
func (c *Client) WriteSnapshot(snap poller.Snapshot) {
	if !c.IsConnected() {
		return
	}
	for _, p := range snapshotPoints(snap, time.Now()) {
		c.writeAPI.WritePoint(p)
	}
}

// snapshotPoints maps a snapshot onto InfluxDB points. Device points are
// only emitted for successful cycles; the poll point is always emitted so
// failure streaks are visible in the history.
func snapshotPoints(snap poller.Snapshot, now time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(snap.Devices)+1)

	if snap.Healthy() {
		for _, d := range snap.Devices {
			points = append(points, write.NewPoint(
				batteryMeasurement,
				map[string]string{
					"devid": d.DevID,
					"type":  d.Type,
				},
				map[string]interface{}{
					"soc":                    d.SOC,
					"charge_w":               d.Charge,
					"discharge_w":            d.Discharge,
					"load_w":                 d.Load,
					"pv_w":                   d.PV,
					"grid_w":                 d.Grid,
					"profit":                 d.Profit,
					"capacity_kwh":           d.CapacityKWh,
					"energy_kwh":             d.EnergyKWh(d.CapacityKWh),
					"calculated_charge_w":    d.CalculatedChargePower(),
					"calculated_discharge_w": d.CalculatedDischargePower(),
				},
				now,
			))
		}
	}

	points = append(points, write.NewPoint(
		pollMeasurement,
		nil,
		map[string]interface{}{
			"success":              snap.Healthy(),
			"device_count":         len(snap.Devices),
			"latency_ms":           snap.LatencyMS,
			"total_energy_kwh":     snap.TotalEnergyKWh,
			"total_power_w":        snap.TotalPowerW,
			"consecutive_failures": snap.ConsecutiveFailures,
		},
		now,
	))

	return points
}
