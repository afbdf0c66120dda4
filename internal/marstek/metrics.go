package marstek

import "math"

// Derived metrics over device records. These mirror what the vendor app
// displays but are computed locally from the polled telemetry.

// Capacity returns the battery capacity for energy calculations: the
// operator-supplied override when present, otherwise defaultKWh.
func (d Device) Capacity(defaultKWh float64) float64 {
	if d.CapacityKWh > 0 {
		return d.CapacityKWh
	}
	return defaultKWh
}

// EnergyKWh returns the stored energy implied by the state of charge,
// rounded to two decimal places.
func (d Device) EnergyKWh(defaultKWh float64) float64 {
	return round2(d.SOC / 100 * d.Capacity(defaultKWh))
}

// CalculatedChargePower estimates the charging power as pv - discharge.
// Returns 0 while discharging; never negative. One decimal place.
func (d Device) CalculatedChargePower() float64 {
	return math.Max(0, round1(d.PV-d.Discharge))
}

// CalculatedDischargePower estimates the net discharge power as
// discharge - pv. Returns 0 while charging; never negative. One decimal place.
func (d Device) CalculatedDischargePower() float64 {
	return math.Max(0, round1(d.Discharge-d.PV))
}

// TotalEnergyKWh returns the aggregate stored energy across all devices,
// rounded to two decimal places.
func TotalEnergyKWh(devices []Device, defaultKWh float64) float64 {
	total := 0.0
	for _, d := range devices {
		total += d.SOC / 100 * d.Capacity(defaultKWh)
	}
	return round2(total)
}

// TotalPower returns the aggregate net power (charge - discharge) across all
// devices in watts, rounded to two decimal places. Positive means the fleet
// is charging overall.
func TotalPower(devices []Device) float64 {
	total := 0.0
	for _, d := range devices {
		total += d.Charge - d.Discharge
	}
	return round2(total)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
