// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package pack

import "fmt"

// ModuleSample holds the raw channels and derived fields for one of the
// eight modules in the pack.
type ModuleSample struct {
	// Raw channels.
	GroupVoltages [GroupsPerModule]float64 // V, one per series group
	NTC1          float64                  // °C
	NTC2          float64                  // °C
	SwellingPct   float64                  // 0..100

	// Computed fields, filled by Compute. Read-only after that.
	ModuleVoltage float64 // V, sum of GroupVoltages
	MeanGroupV    float64 // V, ModuleVoltage / GroupsPerModule
	VSpreadMV     float64 // mV, max-min of GroupVoltages
	DeltaTIntra   float64 // °C, |NTC1-NTC2|
	MaxDTDt       float64 // °C/min, module-local maximum dT/dt across its two NTCs
}

// Snapshot is one pack sample: every raw channel ingested this cycle plus
// the facts derived from them. Raw channels are written by the inbound
// decoder (or a test fixture); computed facts are written in place by
// Compute and must not be written anywhere else.
type Snapshot struct {
	// Raw pack-level channels.
	PackVoltage    float64 // V
	PackCurrentA   float64 // A, signed; positive = discharge
	RIntMilliOhm   float64 // mΩ, estimated group internal resistance
	Modules        [Modules]ModuleSample
	AmbientC       float64 // °C
	CoolantInC     float64 // °C
	CoolantOutC    float64 // °C
	GasRatio1      float64 // dimensionless, 1.0 = clean air
	GasRatio2      float64
	PressureDelta1 float64 // hPa, positive = overpressure
	PressureDelta2 float64
	HumidityPct    float64 // %
	IsolationMOhm  float64 // MΩ
	ShortCircuit   bool    // raised by the fast loop

	// Computed facts, filled by Compute.
	DTDtMaxCPerMin float64 // °C/min, max of per-module MaxDTDt
	VSpreadMV      float64 // mV, max-min across all SeriesTotal groups
	TempSpreadC    float64 // °C, max-min across all 16 NTCs
	TCoreEstC      float64 // °C, estimated hottest-cell core temperature
	DRDtMOhmPerSec float64 // mΩ/s, filled by the scheduler (needs previous-sample history)
	CoolantDeltaC  float64 // °C, outlet - inlet
	HotspotModule  int     // 1-based; 0 = not yet computed
	HotspotTempC   float64 // °C, equals the max NTC across the pack when HotspotModule != 0
}

// Compute fills every derived field of s from its raw channels. Raw
// channels are never written by Compute; MaxDTDt per module and
// DRDtMOhmPerSec are rate fields that need inter-sample history and are
// maintained by the scheduler (internal/ring) before Compute runs.
func Compute(s *Snapshot) {
	computeModules(s)
	computePackSpreads(s)
	computeHotspot(s)
	computeCoreTemperature(s)
	s.CoolantDeltaC = s.CoolantOutC - s.CoolantInC
}

func computeModules(s *Snapshot) {
	for i := range s.Modules {
		m := &s.Modules[i]

		sum := 0.0
		min, max := m.GroupVoltages[0], m.GroupVoltages[0]
		for _, v := range m.GroupVoltages {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		m.ModuleVoltage = sum
		m.MeanGroupV = sum / GroupsPerModule
		m.VSpreadMV = (max - min) * 1000

		m.DeltaTIntra = absF(m.NTC1 - m.NTC2)
		// MaxDTDt is maintained by the scheduler (internal/ring based
		// history, spec §4.5) through System.UpdateRates; Compute never
		// writes it and never derives a rate from a single sample.
	}
}

func computePackSpreads(s *Snapshot) {
	min, max := s.Modules[0].GroupVoltages[0], s.Modules[0].GroupVoltages[0]
	for _, m := range s.Modules {
		for _, v := range m.GroupVoltages {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	s.VSpreadMV = (max - min) * 1000

	tMin, tMax := s.Modules[0].NTC1, s.Modules[0].NTC1
	for _, m := range s.Modules {
		for _, t := range [2]float64{m.NTC1, m.NTC2} {
			if t < tMin {
				tMin = t
			}
			if t > tMax {
				tMax = t
			}
		}
	}
	s.TempSpreadC = tMax - tMin

	dtMax := s.Modules[0].MaxDTDt
	for _, m := range s.Modules {
		if m.MaxDTDt > dtMax {
			dtMax = m.MaxDTDt
		}
	}
	s.DTDtMaxCPerMin = dtMax
}

// computeHotspot finds the module whose hotter NTC is the maximum across
// the pack. Ties are broken by lowest module index, per spec §4.1.
func computeHotspot(s *Snapshot) {
	hotspotIdx := -1
	hotspotTemp := 0.0
	for i, m := range s.Modules {
		hot := m.NTC1
		if m.NTC2 > hot {
			hot = m.NTC2
		}
		if hotspotIdx == -1 || hot > hotspotTemp {
			hotspotIdx = i
			hotspotTemp = hot
		}
	}
	if hotspotIdx == -1 {
		s.HotspotModule = 0
		s.HotspotTempC = 0
		return
	}
	s.HotspotModule = hotspotIdx + 1 // 1-based
	s.HotspotTempC = hotspotTemp
}

// computeCoreTemperature estimates the hottest cell's core temperature as
// t_core = t_surface_max + i_cell^2 * r_int * r_thermal, per spec §4.1.
func computeCoreTemperature(s *Snapshot) {
	iCell := s.PackCurrentA / CellsPerGroup
	rIntOhm := s.RIntMilliOhm / 1000.0
	s.TCoreEstC = s.HotspotTempC + iCell*iCell*rIntOhm*RThermalCPerWatt
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// HumanSummary produces a one-line debug-channel string summarizing the
// pack's most safety-relevant derived facts. Grounded on the original
// firmware's console print path (see SPEC_FULL.md "Supplemented features").
func (s *Snapshot) HumanSummary() string {
	stage := CascadeStage(s.TCoreEstC)
	return fmt.Sprintf("hotspot=m%d tHotspot=%.1fC tCore=%.1fC stage=%s vSpread=%.1fmV tSpread=%.1fC",
		s.HotspotModule, s.HotspotTempC, s.TCoreEstC, CascadeStageNames[stage], s.VSpreadMV, s.TempSpreadC)
}
