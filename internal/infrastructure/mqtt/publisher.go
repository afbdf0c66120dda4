package mqtt

import (
	"encoding/json"
	"time"

	"marstek-bridge/internal/marstek"
	"marstek-bridge/internal/poller"
)

// Sink is the publish surface the snapshot publisher needs.
// *Client implements it.
type Sink interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Publisher turns poll snapshots into retained MQTT state messages:
// one per battery plus a fleet summary. Register PublishSnapshot with
// the coordinator's OnUpdate hook.
type Publisher struct {
	sink   Sink
	logger Logger
}

// NewPublisher creates a Publisher writing to sink.
func NewPublisher(sink Sink, logger Logger) *Publisher {
	return &Publisher{sink: sink, logger: logger}
}

// deviceState is the per-battery MQTT payload.
type deviceState struct {
	DevID   string `json:"devid"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	SN      string `json:"sn,omitempty"`
	Version string `json:"version,omitempty"`

	SOC         float64 `json:"soc"`
	ChargeW     float64 `json:"charge_w"`
	DischargeW  float64 `json:"discharge_w"`
	LoadW       float64 `json:"load_w"`
	PVW         float64 `json:"pv_w"`
	GridW       float64 `json:"grid_w"`
	Profit      float64 `json:"profit"`
	CapacityKWh float64 `json:"capacity_kwh"`

	EnergyKWh            float64 `json:"energy_kwh"`
	CalculatedChargeW    float64 `json:"calculated_charge_w"`
	CalculatedDischargeW float64 `json:"calculated_discharge_w"`

	ReportTime marstek.Timestamp `json:"report_time"`
}

// summary is the fleet-wide MQTT payload.
type summary struct {
	DeviceCount         int       `json:"device_count"`
	TotalEnergyKWh      float64   `json:"total_energy_kwh"`
	TotalPowerW         float64   `json:"total_power_w"`
	Healthy             bool      `json:"healthy"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LatencyMS           float64   `json:"latency_ms"`
}

// PublishSnapshot publishes the per-device state topics and the summary.
// Publish errors are logged, not returned; the next snapshot retries the
// same retained topics anyway.
func (p *Publisher) PublishSnapshot(snap poller.Snapshot) {
	for _, d := range snap.Devices {
		payload, err := json.Marshal(newDeviceState(d))
		if err != nil {
			continue
		}
		if err := p.sink.Publish(DeviceStateTopic(d.DevID), payload, true); err != nil {
			if p.logger != nil {
				p.logger.Warn("publishing device state failed",
					"devid", d.DevID, "error", err)
			}
			return
		}
	}

	payload, err := json.Marshal(summary{
		DeviceCount:         len(snap.Devices),
		TotalEnergyKWh:      snap.TotalEnergyKWh,
		TotalPowerW:         snap.TotalPowerW,
		Healthy:             snap.Healthy(),
		LastSuccess:         snap.LastSuccess,
		LastError:           snap.LastError,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		LatencyMS:           snap.LatencyMS,
	})
	if err != nil {
		return
	}
	if err := p.sink.Publish(SummaryTopic, payload, true); err != nil && p.logger != nil {
		p.logger.Warn("publishing summary failed", "error", err)
	}
}

func newDeviceState(d marstek.Device) deviceState {
	return deviceState{
		DevID:                d.DevID,
		Name:                 d.Name,
		Type:                 d.Type,
		SN:                   d.SN,
		Version:              string(d.Version),
		SOC:                  d.SOC,
		ChargeW:              d.Charge,
		DischargeW:           d.Discharge,
		LoadW:                d.Load,
		PVW:                  d.PV,
		GridW:                d.Grid,
		Profit:               d.Profit,
		CapacityKWh:          d.CapacityKWh,
		EnergyKWh:            d.EnergyKWh(d.CapacityKWh),
		CalculatedChargeW:    d.CalculatedChargePower(),
		CalculatedDischargeW: d.CalculatedDischargePower(),
		ReportTime:           d.ReportTime,
	}
}
