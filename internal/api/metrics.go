package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements prometheus.Collector over the poll snapshot.
// Scrapes never hit the vendor cloud; they read whatever the poller
// last published, so a hammering Prometheus costs nothing upstream.
type Collector struct {
	source SnapshotSource

	soc                  *prometheus.Desc
	chargeW              *prometheus.Desc
	dischargeW           *prometheus.Desc
	loadW                *prometheus.Desc
	pvW                  *prometheus.Desc
	gridW                *prometheus.Desc
	profit               *prometheus.Desc
	capacityKWh          *prometheus.Desc
	energyKWh            *prometheus.Desc
	calculatedChargeW    *prometheus.Desc
	calculatedDischargeW *prometheus.Desc

	totalEnergyKWh      *prometheus.Desc
	totalPowerW         *prometheus.Desc
	deviceCount         *prometheus.Desc
	pollSuccess         *prometheus.Desc
	pollLatencySeconds  *prometheus.Desc
	consecutiveFailures *prometheus.Desc
	lastSuccessUnix     *prometheus.Desc
}

var deviceLabels = []string{"devid", "name", "type"}

// NewCollector creates a collector reading from source.
func NewCollector(source SnapshotSource) *Collector {
	return &Collector{
		source: source,
		soc: prometheus.NewDesc(
			"marstek_battery_soc_percent",
			"Battery state of charge in percent",
			deviceLabels, nil,
		),
		chargeW: prometheus.NewDesc(
			"marstek_battery_charge_watts",
			"Reported charging power in watts",
			deviceLabels, nil,
		),
		dischargeW: prometheus.NewDesc(
			"marstek_battery_discharge_watts",
			"Reported discharging power in watts",
			deviceLabels, nil,
		),
		loadW: prometheus.NewDesc(
			"marstek_battery_load_watts",
			"Reported load power in watts",
			deviceLabels, nil,
		),
		pvW: prometheus.NewDesc(
			"marstek_battery_pv_watts",
			"Reported photovoltaic input power in watts",
			deviceLabels, nil,
		),
		gridW: prometheus.NewDesc(
			"marstek_battery_grid_watts",
			"Reported grid power in watts",
			deviceLabels, nil,
		),
		profit: prometheus.NewDesc(
			"marstek_battery_profit",
			"Reported cumulative profit in the account currency",
			deviceLabels, nil,
		),
		capacityKWh: prometheus.NewDesc(
			"marstek_battery_capacity_kwh",
			"Battery capacity in kWh (operator override or configured default)",
			deviceLabels, nil,
		),
		energyKWh: prometheus.NewDesc(
			"marstek_battery_energy_kwh",
			"Stored energy implied by state of charge, in kWh",
			deviceLabels, nil,
		),
		calculatedChargeW: prometheus.NewDesc(
			"marstek_battery_calculated_charge_watts",
			"Estimated net charging power (pv - discharge, floored at 0)",
			deviceLabels, nil,
		),
		calculatedDischargeW: prometheus.NewDesc(
			"marstek_battery_calculated_discharge_watts",
			"Estimated net discharging power (discharge - pv, floored at 0)",
			deviceLabels, nil,
		),
		totalEnergyKWh: prometheus.NewDesc(
			"marstek_total_energy_kwh",
			"Aggregate stored energy across all batteries in kWh",
			nil, nil,
		),
		totalPowerW: prometheus.NewDesc(
			"marstek_total_power_watts",
			"Aggregate net power across all batteries (positive=charging)",
			nil, nil,
		),
		deviceCount: prometheus.NewDesc(
			"marstek_device_count",
			"Number of batteries in the latest snapshot",
			nil, nil,
		),
		pollSuccess: prometheus.NewDesc(
			"marstek_poll_success",
			"Whether the last poll cycle succeeded (1=yes, 0=no)",
			nil, nil,
		),
		pollLatencySeconds: prometheus.NewDesc(
			"marstek_poll_latency_seconds",
			"Duration of the last successful poll cycle in seconds",
			nil, nil,
		),
		consecutiveFailures: prometheus.NewDesc(
			"marstek_poll_consecutive_failures",
			"Number of poll cycles failed in a row",
			nil, nil,
		),
		lastSuccessUnix: prometheus.NewDesc(
			"marstek_poll_last_success_timestamp_seconds",
			"Unix timestamp of the last successful poll cycle",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.soc
	ch <- c.chargeW
	ch <- c.dischargeW
	ch <- c.loadW
	ch <- c.pvW
	ch <- c.gridW
	ch <- c.profit
	ch <- c.capacityKWh
	ch <- c.energyKWh
	ch <- c.calculatedChargeW
	ch <- c.calculatedDischargeW
	ch <- c.totalEnergyKWh
	ch <- c.totalPowerW
	ch <- c.deviceCount
	ch <- c.pollSuccess
	ch <- c.pollLatencySeconds
	ch <- c.consecutiveFailures
	ch <- c.lastSuccessUnix
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	for _, d := range snap.Devices {
		labels := []string{d.DevID, d.Name, d.Type}
		ch <- prometheus.MustNewConstMetric(c.soc, prometheus.GaugeValue, d.SOC, labels...)
		ch <- prometheus.MustNewConstMetric(c.chargeW, prometheus.GaugeValue, d.Charge, labels...)
		ch <- prometheus.MustNewConstMetric(c.dischargeW, prometheus.GaugeValue, d.Discharge, labels...)
		ch <- prometheus.MustNewConstMetric(c.loadW, prometheus.GaugeValue, d.Load, labels...)
		ch <- prometheus.MustNewConstMetric(c.pvW, prometheus.GaugeValue, d.PV, labels...)
		ch <- prometheus.MustNewConstMetric(c.gridW, prometheus.GaugeValue, d.Grid, labels...)
		ch <- prometheus.MustNewConstMetric(c.profit, prometheus.GaugeValue, d.Profit, labels...)
		ch <- prometheus.MustNewConstMetric(c.capacityKWh, prometheus.GaugeValue, d.CapacityKWh, labels...)
		ch <- prometheus.MustNewConstMetric(c.energyKWh, prometheus.GaugeValue, d.EnergyKWh(d.CapacityKWh), labels...)
		ch <- prometheus.MustNewConstMetric(c.calculatedChargeW, prometheus.GaugeValue, d.CalculatedChargePower(), labels...)
		ch <- prometheus.MustNewConstMetric(c.calculatedDischargeW, prometheus.GaugeValue, d.CalculatedDischargePower(), labels...)
	}

	ch <- prometheus.MustNewConstMetric(c.totalEnergyKWh, prometheus.GaugeValue, snap.TotalEnergyKWh)
	ch <- prometheus.MustNewConstMetric(c.totalPowerW, prometheus.GaugeValue, snap.TotalPowerW)
	ch <- prometheus.MustNewConstMetric(c.deviceCount, prometheus.GaugeValue, float64(len(snap.Devices)))
	// Latency is tracked in milliseconds; Prometheus convention is seconds.
	ch <- prometheus.MustNewConstMetric(c.pollLatencySeconds, prometheus.GaugeValue, snap.LatencyMS/1000)
	ch <- prometheus.MustNewConstMetric(c.consecutiveFailures, prometheus.GaugeValue, float64(snap.ConsecutiveFailures))

	success := 0.0
	if snap.Healthy() {
		success = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.pollSuccess, prometheus.GaugeValue, success)

	if !snap.LastSuccess.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastSuccessUnix, prometheus.GaugeValue,
			float64(snap.LastSuccess.Unix()))
	}
}
