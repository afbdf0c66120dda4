// Package influxdb records poll history in InfluxDB v2.
//
// Two measurements are written per cycle: "battery" (one row per device
// with telemetry and derived energy figures) and "poll" (cycle latency,
// fleet totals and failure streaks). Writes go through the non-blocking
// batched write API, so the poll loop never waits on InfluxDB.
//
// The integration is optional; when disabled in config the bridge simply
// never constructs a client.
package influxdb
