// Package poller drives the periodic refresh cycle against the vendor
// cloud and publishes the result as an immutable snapshot.
//
// The Coordinator is the bridge's heartbeat: every interval it fetches
// the device list, stamps each device with its battery capacity (stored
// override or configured default), derives fleet totals and swaps the
// published snapshot wholesale. Consumers (HTTP API, MQTT publisher,
// metrics collector) read the snapshot or subscribe via OnUpdate; none
// of them ever talk to the cloud directly.
//
// Failures are split into two kinds: authentication problems (wrapped in
// ErrAuthenticationFailed) that need operator action, and transient
// faults that simply leave the previous snapshot in place until the next
// tick succeeds.
package poller
