// Package mqtt publishes bridge telemetry to an MQTT broker.
//
// The bridge is publish-only: after every poll cycle it pushes one
// retained state message per battery (marstek/battery/<devid>/state) and
// a retained fleet summary (marstek/bridge/summary). Availability is
// signalled on marstek/bridge/status, with a Last Will so consumers see
// "offline" even when the bridge dies without a goodbye.
//
// Client owns the paho connection (reconnect with backoff, LWT, publish
// timeouts); Publisher maps poll snapshots onto the topic layout.
//
// # Thread Safety
//
// Client is safe for concurrent use from multiple goroutines.
package mqtt
