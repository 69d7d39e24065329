// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package anomaly

import (
	"math"

	"github.com/shakebs/battsafe/pack"
	"github.com/shakebs/battsafe/threshold"
)

// Result carries everything the correlation engine needs from one
// evaluation. It is produced fresh each medium cycle by Evaluate and never
// mutated afterward.
type Result struct {
	Categories         Categories
	ActiveCount        int
	IsShortCircuit     bool
	IsEmergencyDirect  bool
	HotspotModule      int // 1-based, passed through from the snapshot
	AnomalyModules     ModuleSet
	RiskFactor         float64
	CascadeStage       int
}

// Evaluate maps snapshot against thresholds into a Result. It reads both
// arguments and writes neither; it never blocks and never allocates.
func Evaluate(t *threshold.Thresholds, s *pack.Snapshot) Result {
	var r Result
	r.HotspotModule = s.HotspotModule
	r.CascadeStage = pack.CascadeStage(s.TCoreEstC)

	evalElectrical(t, s, &r)
	evalThermal(t, s, &r)
	evalGas(t, s, &r)
	evalPressure(t, s, &r)
	evalSwelling(t, s, &r)

	r.ActiveCount = r.Categories.Count()
	r.RiskFactor = riskFactor(t, s)
	return r
}

func evalElectrical(t *threshold.Thresholds, s *pack.Snapshot, r *Result) {
	fired := false

	if s.PackVoltage < t.VoltageLowV || s.PackVoltage > t.VoltageHighV {
		fired = true
	}
	if s.VSpreadMV > t.VSpreadWarnMV {
		fired = true
	}
	for i := range s.Modules {
		m := &s.Modules[i]
		for _, v := range m.GroupVoltages {
			deviationMV := math.Abs(v-m.MeanGroupV) * 1000
			if deviationMV > t.GroupVDeviationMV {
				fired = true
				r.AnomalyModules = r.AnomalyModules.Add(i)
				break // first offending group per module is enough
			}
		}
	}
	absCurrent := math.Abs(s.PackCurrentA)
	if absCurrent > t.CurrentWarningA {
		fired = true
	}
	if s.RIntMilliOhm > t.RIntWarningMilliOhm {
		fired = true
	}

	if s.ShortCircuit || absCurrent > t.CurrentShortA {
		fired = true
		r.IsShortCircuit = true
	}
	if absCurrent > t.CurrentEmergencyA {
		r.IsEmergencyDirect = true
	}

	if fired {
		r.Categories = r.Categories.Set(Electrical)
	}
}

func evalThermal(t *threshold.Thresholds, s *pack.Snapshot, r *Result) {
	fired := false
	maxNTC := s.HotspotTempC

	for i := range s.Modules {
		m := &s.Modules[i]
		if m.NTC1 > t.TempWarningC || m.NTC2 > t.TempWarningC {
			fired = true
			r.AnomalyModules = r.AnomalyModules.Add(i)
		}
		if m.DeltaTIntra > t.IntraModuleDTWarnC {
			fired = true
			r.AnomalyModules = r.AnomalyModules.Add(i)
		}
	}
	if s.TempSpreadC > t.InterModuleDTWarnC {
		fired = true
	}
	if (maxNTC - s.AmbientC) >= t.DeltaTAmbientWarn {
		fired = true
	}
	if s.DTDtMaxCPerMin > t.DtDtWarningCPerMin {
		fired = true
	}

	if maxNTC > t.TempEmergencyC || s.DTDtMaxCPerMin > t.DtDtEmergencyCPerMin {
		r.IsEmergencyDirect = true
	}

	if fired {
		r.Categories = r.Categories.Set(Thermal)
	}
}

func evalGas(t *threshold.Thresholds, s *pack.Snapshot, r *Result) {
	if worstGas(s) < t.GasWarningRatio {
		r.Categories = r.Categories.Set(Gas)
	}
}

func evalPressure(t *threshold.Thresholds, s *pack.Snapshot, r *Result) {
	if worstPressure(s) > t.PressureWarningHPa {
		r.Categories = r.Categories.Set(Pressure)
	}
}

func evalSwelling(t *threshold.Thresholds, s *pack.Snapshot, r *Result) {
	fired := false
	for i := range s.Modules {
		if s.Modules[i].SwellingPct > t.SwellingWarningPct {
			fired = true
			r.AnomalyModules = r.AnomalyModules.Add(i)
		}
	}
	if fired {
		r.Categories = r.Categories.Set(Swelling)
	}
}

func worstGas(s *pack.Snapshot) float64 {
	return math.Min(s.GasRatio1, s.GasRatio2)
}

func worstPressure(s *pack.Snapshot) float64 {
	return math.Max(s.PressureDelta1, s.PressureDelta2)
}

// riskFactor implements the bounded scalar from spec §4.2: four
// individually clamped contributions, summed and clamped again.
func riskFactor(t *threshold.Thresholds, s *pack.Snapshot) float64 {
	clamp01 := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}

	tempContribution := clamp01(math.Max(0, (s.TCoreEstC-60)/240))
	rateContribution := clamp01(s.DTDtMaxCPerMin * 0.05)
	gasContribution := clamp01(math.Max(0, 0.8-worstGas(s)) * 0.5)
	pressureContribution := clamp01(math.Max(0, worstPressure(s)) * 0.02)

	return clamp01(tempContribution + rateContribution + gasContribution + pressureContribution)
}
