// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package threshold holds the supervisor's named numeric limits: a flat,
// read-only record created once at startup and never mutated during
// operation, plus the ordering self-check that gates the safety-armed
// state.
package threshold

import "fmt"

// Thresholds is the closed set of named limits consumed by the anomaly
// evaluator (package anomaly) and the scheduler's window recomputation.
// Units are documented per field; all are in the units the raw channels
// arrive in after decode, never pre-scaled.
type Thresholds struct {
	// Electrical.
	VoltageLowV          float64 `yaml:"voltage_low_v"`           // V, pack undervoltage
	VoltageHighV         float64 `yaml:"voltage_high_v"`          // V, pack overvoltage
	VSpreadWarnMV        float64 `yaml:"v_spread_warn_mv"`        // mV, pack-wide group voltage spread
	GroupVDeviationMV    float64 `yaml:"group_v_deviation_mv"`    // mV, per-group deviation from module mean
	CurrentWarningA      float64 `yaml:"current_warning_a"`       // A, |pack current|
	CurrentShortA        float64 `yaml:"current_short_a"`         // A, short-circuit trip
	CurrentEmergencyA    float64 `yaml:"current_emergency_a"`     // A, direct-emergency trip
	RIntWarningMilliOhm  float64 `yaml:"r_int_warning_mohm"`      // mΩ, estimated group internal resistance

	// Thermal.
	TempWarningC        float64 `yaml:"temp_warning_c"`          // °C, any NTC
	TempCriticalC       float64 `yaml:"temp_critical_c"`         // °C, unused by evaluator directly; ordering only
	TempEmergencyC      float64 `yaml:"temp_emergency_c"`        // °C, direct-emergency trip
	IntraModuleDTWarnC  float64 `yaml:"intra_module_dt_warn_c"`  // °C, |NTC1-NTC2| within a module
	InterModuleDTWarnC  float64 `yaml:"inter_module_dt_warn_c"`  // °C, pack-wide temp spread
	DeltaTAmbientWarn   float64 `yaml:"delta_t_ambient_warning"` // °C, max_ntc - ambient
	DtDtWarningCPerMin  float64 `yaml:"dt_dt_warning"`           // °C/min
	DtDtEmergencyCPerMin float64 `yaml:"dt_dt_emergency"`        // °C/min

	// Gas.
	GasWarningRatio  float64 `yaml:"gas_warning_ratio"`  // dimensionless; lower = more VOC
	GasCriticalRatio float64 `yaml:"gas_critical_ratio"` // ordering only; no rule reads this today

	// Pressure.
	PressureWarningHPa  float64 `yaml:"pressure_warning_hpa"`
	PressureCriticalHPa float64 `yaml:"pressure_critical_hpa"`

	// Swelling.
	SwellingWarningPct float64 `yaml:"swelling_warning_pct"`

	// Correlation engine windows, milliseconds. System.SyncTimingLimits
	// (package system) converts these into cycle counts for the current
	// medium period; the scheduler calls it on reset and every medium
	// cycle.
	CriticalHoldMs     uint32 `yaml:"critical_hold_ms"`
	DeescalationHoldMs uint32 `yaml:"deescalation_hold_ms"`

	// EmergencyRecoveryLimit is a cycle count, not a time window: the
	// spec defines it directly in evaluations, not milliseconds, so it
	// is not subject to the window-preserving recompute.
	EmergencyRecoveryLimit uint32 `yaml:"emergency_recovery_limit"`
}

// Default returns the documented startup defaults.
func Default() Thresholds {
	return Thresholds{
		VoltageLowV:          280.0,
		VoltageHighV:         380.0,
		VSpreadWarnMV:        150.0,
		GroupVDeviationMV:    15.0,
		CurrentWarningA:      200.0,
		CurrentShortA:        350.0,
		CurrentEmergencyA:    500.0,
		RIntWarningMilliOhm:  1.0,

		TempWarningC:         55.0,
		TempCriticalC:        70.0,
		TempEmergencyC:       80.0,
		IntraModuleDTWarnC:   8.0,
		InterModuleDTWarnC:   12.0,
		DeltaTAmbientWarn:    20.0,
		DtDtWarningCPerMin:   2.0,
		DtDtEmergencyCPerMin: 5.0,

		GasWarningRatio:  0.70,
		GasCriticalRatio: 0.50,

		PressureWarningHPa:  1.0,
		PressureCriticalHPa: 3.0,

		SwellingWarningPct: 3.0,

		CriticalHoldMs:     10000,
		DeescalationHoldMs: 5000,

		EmergencyRecoveryLimit: 50,
	}
}

// ConfigError describes a threshold ordering self-check failure. It is
// always configuration-fatal (spec §7): reported through the debug
// channel, never recovered from without re-init.
type ConfigError struct {
	Rule string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("threshold: ordering self-check failed: %s", e.Rule)
}

// Validate implements the ordering rules from spec §3/§6. It never
// panics; callers treat a non-nil return as configuration-fatal.
func (t *Thresholds) Validate() error {
	switch {
	case !(t.TempWarningC < t.TempCriticalC && t.TempCriticalC < t.TempEmergencyC):
		return &ConfigError{Rule: "temp_warning_c < temp_critical_c < temp_emergency_c"}
	case !(t.GasWarningRatio > t.GasCriticalRatio):
		return &ConfigError{Rule: "gas_warning_ratio > gas_critical_ratio"}
	case !(t.PressureWarningHPa < t.PressureCriticalHPa):
		return &ConfigError{Rule: "pressure_warning_hpa < pressure_critical_hpa"}
	case !(t.CurrentWarningA < t.CurrentShortA && t.CurrentShortA < t.CurrentEmergencyA):
		return &ConfigError{Rule: "current_warning_a < current_short_a < current_emergency_a"}
	}
	return nil
}
