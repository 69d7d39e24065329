// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package system owns the supervisor's single mutable runtime record: the
// threshold table, the latest pack snapshot, the latest evaluator result,
// the correlation engine, the receive parser, and the per-channel rate
// histories. Per the statics-removal redesign, nothing here is a package
// variable — every field lives in a System value constructed once at
// startup and threaded through by its one caller, the scheduler.
package system

import (
	"fmt"

	"github.com/shakebs/battsafe/anomaly"
	"github.com/shakebs/battsafe/correlation"
	"github.com/shakebs/battsafe/internal/ring"
	"github.com/shakebs/battsafe/pack"
	"github.com/shakebs/battsafe/protocol/inbound"
	"github.com/shakebs/battsafe/protocol/outbound"
	"github.com/shakebs/battsafe/threshold"
)

// System is the owned runtime state. The zero value is not ready to use;
// construct with New.
type System struct {
	Thresholds threshold.Thresholds
	Snapshot   pack.Snapshot
	Result     anomaly.Result
	Engine     *correlation.Engine
	Parser     *inbound.Parser

	SafetyArmed bool

	rIntHistory ring.History
	ntcHistory  [pack.Modules][2]ring.History
}

// New constructs a System from t with a fresh correlation engine seeded at
// the nominal medium period (500ms, per spec §4.5's startup default) and an
// empty receive parser. Callers must still call SelfCheck before trusting
// SafetyArmed.
func New(t threshold.Thresholds) *System {
	const nominalMediumPeriodMs = 500
	s := &System{
		Thresholds: t,
		Parser:     inbound.NewParser(),
	}
	s.Engine = correlation.New(
		msToCycles(t.CriticalHoldMs, nominalMediumPeriodMs),
		msToCycles(t.DeescalationHoldMs, nominalMediumPeriodMs),
		t.EmergencyRecoveryLimit,
	)
	// R_int has no channel of its own on the wire; it is seeded with a
	// representative nominal value, which ApplyInboundCycle and UpdateRates
	// leave unchanged.
	s.Snapshot.RIntMilliOhm = 0.44
	return s
}

// msToCycles converts a millisecond hold window into a cycle count at the
// given period, rounding up so the hold never resolves early, and clamping
// to the engine's accepted [1, 65535] range. A zero period resolves to one
// cycle rather than dividing by zero.
func msToCycles(windowMs, periodMs uint32) uint32 {
	if periodMs == 0 {
		return 1
	}
	cycles := (windowMs + periodMs - 1) / periodMs
	if cycles < 1 {
		return 1
	}
	if cycles > 65535 {
		return 65535
	}
	return cycles
}

// SyncTimingLimits recomputes the engine's cycle-count limits for the
// given medium period and applies them in place. Called unconditionally
// every medium cycle and whenever the scheduler changes the medium period;
// SetLimits already preserves any in-flight countdown, so recomputing on
// an unchanged period is harmless.
func (s *System) SyncTimingLimits(mediumPeriodMs uint32) {
	s.Engine.SetLimits(
		msToCycles(s.Thresholds.CriticalHoldMs, mediumPeriodMs),
		msToCycles(s.Thresholds.DeescalationHoldMs, mediumPeriodMs),
		s.Thresholds.EmergencyRecoveryLimit,
	)
}

// ApplyInboundCycle copies the most recently completed digital-twin cycle
// (one pack frame plus eight module frames) from the parser into the
// snapshot's raw channels, then tells the parser to start tracking the
// next cycle's presence mask.
func (s *System) ApplyInboundCycle() {
	pf := s.Parser.LastPack
	snap := &s.Snapshot
	snap.ShortCircuit = false
	snap.PackVoltage = frameDeci(pf.PackVoltageDV)
	snap.PackCurrentA = frameDeciSigned(pf.PackCurrentDA)
	snap.AmbientC = frameDeciSigned(pf.AmbientDT)
	snap.CoolantInC = frameDeciSigned(pf.CoolantInletDT)
	snap.CoolantOutC = frameDeciSigned(pf.CoolantOutletDT)
	snap.GasRatio1 = float64(pf.GasRatio1CP) / 100
	snap.GasRatio2 = float64(pf.GasRatio2CP) / 100
	snap.PressureDelta1 = frameCentiSigned(pf.PressureDelta1CHPa)
	snap.PressureDelta2 = frameCentiSigned(pf.PressureDelta2CHPa)
	snap.HumidityPct = float64(pf.HumidityPct)
	snap.IsolationMOhm = float64(pf.IsolationMOhmX10) / 10

	for i := 0; i < pack.Modules; i++ {
		mf := &s.Parser.LastModules[i]
		m := &snap.Modules[i]
		m.NTC1 = frameDeciSigned(mf.NTC1DT)
		m.NTC2 = frameDeciSigned(mf.NTC2DT)
		m.SwellingPct = float64(mf.SwellingPct)
		for g := 0; g < pack.GroupsPerModule; g++ {
			m.GroupVoltages[g] = mf.GroupVoltage(g)
		}
	}

	s.Parser.ResetCycle()
}

func frameDeci(v uint16) float64       { return float64(v) / 10 }
func frameDeciSigned(v int16) float64  { return float64(v) / 10 }
func frameCentiSigned(v int16) float64 { return float64(v) / 100 }

// UpdateRates pushes the current pack-internal-resistance and per-module
// NTC samples into their histories at nowMs, then recomputes DRDtMOhmPerSec
// and every module's MaxDTDt from the resulting slopes. Must run before
// Evaluate so the rate fields it fills are visible to the thermal rule and
// the risk factor.
func (s *System) UpdateRates(nowMs uint32) {
	snap := &s.Snapshot

	s.rIntHistory.Push(nowMs, snap.RIntMilliOhm)
	snap.DRDtMOhmPerSec = s.rIntHistory.SlopePerMinute() / 60

	for i := range snap.Modules {
		m := &snap.Modules[i]
		hist := &s.ntcHistory[i]
		hist[0].Push(nowMs, m.NTC1)
		hist[1].Push(nowMs, m.NTC2)

		d1 := hist[0].SlopePerMinute()
		d2 := hist[1].SlopePerMinute()
		m.MaxDTDt = maxAbs(d1, d2)
	}
}

func maxAbs(a, b float64) float64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a > b {
		return a
	}
	return b
}

// Evaluate recomputes the snapshot's derived fields and runs the anomaly
// evaluator against them, storing the result.
func (s *System) Evaluate() {
	pack.Compute(&s.Snapshot)
	s.Result = anomaly.Evaluate(&s.Thresholds, &s.Snapshot)
}

// UpdateEngine feeds the current Result into the correlation engine and
// returns the resulting state.
func (s *System) UpdateEngine() correlation.State {
	return s.Engine.Update(s.Result)
}

// SelfCheck runs the startup gate: threshold ordering, then an encode/
// decode/validate round trip of a representative probe frame through both
// outbound frame types. It sets SafetyArmed and returns the first failure,
// if any; SafetyArmed stays false until SelfCheck returns nil.
func (s *System) SelfCheck() error {
	s.SafetyArmed = false

	if err := s.Thresholds.Validate(); err != nil {
		return err
	}

	probe := probeSnapshot()
	pack.Compute(&probe)

	packBuf := outbound.EncodePackSummary(0, &probe, anomaly.Result{}, correlation.Normal)
	if len(packBuf) != outbound.PackSummarySize {
		return fmt.Errorf("system: self-check: pack-summary frame is %d bytes, want %d", len(packBuf), outbound.PackSummarySize)
	}
	if !outbound.Validate(packBuf) {
		return fmt.Errorf("system: self-check: pack-summary probe frame failed validation")
	}

	moduleBuf := outbound.EncodeModuleDetail(0, &probe.Modules[0])
	if len(moduleBuf) != outbound.ModuleDetailSize {
		return fmt.Errorf("system: self-check: module-detail frame is %d bytes, want %d", len(moduleBuf), outbound.ModuleDetailSize)
	}
	if !outbound.Validate(moduleBuf) {
		return fmt.Errorf("system: self-check: module-detail probe frame failed validation")
	}

	s.SafetyArmed = true
	return nil
}

// probeSnapshot builds a nominal, fully in-range snapshot for SelfCheck's
// round-trip probe. It is never used for anything the evaluator sees.
func probeSnapshot() pack.Snapshot {
	var s pack.Snapshot
	s.PackVoltage = 330
	s.PackCurrentA = 50
	s.RIntMilliOhm = 0.4
	s.AmbientC = 25
	s.CoolantInC = 24
	s.CoolantOutC = 26
	s.GasRatio1 = 0.95
	s.GasRatio2 = 0.95
	s.PressureDelta1 = 0.1
	s.PressureDelta2 = 0.1
	s.HumidityPct = 40
	s.IsolationMOhm = 500
	for i := range s.Modules {
		m := &s.Modules[i]
		m.NTC1 = 28
		m.NTC2 = 28
		for g := range m.GroupVoltages {
			m.GroupVoltages[g] = 330.0 / pack.SeriesTotal
		}
	}
	return s
}
