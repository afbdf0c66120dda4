package mqtt

import "fmt"

// Topic layout. Everything the bridge publishes sits under the marstek/
// prefix so a single subscription (marstek/#) captures the lot.
const (
	// topicPrefix roots all bridge topics.
	topicPrefix = "marstek"

	// BridgeStatusTopic carries online/offline availability, including
	// the broker-published LWT on unexpected disconnect. Retained.
	BridgeStatusTopic = topicPrefix + "/bridge/status"

	// SummaryTopic carries the fleet summary after every poll. Retained.
	SummaryTopic = topicPrefix + "/bridge/summary"
)

// DeviceStateTopic returns the retained state topic for one battery,
// e.g. marstek/battery/24FC0A1B2C3D/state.
func DeviceStateTopic(devID string) string {
	return fmt.Sprintf("%s/battery/%s/state", topicPrefix, devID)
}
