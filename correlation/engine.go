// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package correlation implements the latching state machine that
// escalates NORMAL -> WARNING -> CRITICAL -> EMERGENCY from how many
// independent anomaly categories are simultaneously active, using
// time-based hold windows (expressed as cycle counts by the scheduler)
// rather than single-sample trips.
//
// This is the single-threaded, cooperative-scheduler analogue of the
// goroutine/channel emergency-latch idiom seen in the example corpus's
// chaos-engineering emergency controller: a sticky "stopped" flag, a
// supervised (here: counted, not time.Sleep-based) recovery window, and
// no locking because nothing else touches this state concurrently.
package correlation

import (
	"fmt"

	"github.com/shakebs/battsafe/anomaly"
)

// State is one of the four escalation levels.
type State int

const (
	Normal State = iota
	Warning
	Critical
	Emergency
)

func (s State) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	case Emergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Engine is the owned correlation state machine. The zero value is not
// ready to use; construct with New.
type Engine struct {
	state State

	criticalCountdown      uint32
	criticalCountdownLimit uint32

	deescalationCounter uint32
	deescalationLimit   uint32

	emergencyLatched        bool
	emergencyRecoveryCount  uint32
	emergencyRecoveryLimit  uint32

	// Pass-through fields, copied from the evaluator Result at the start
	// of every Update call.
	hotspotModule  int
	anomalyModules anomaly.ModuleSet
	riskFactor     float64
	cascadeStage   int

	// Monotone counters.
	totalEvaluations     uint64
	warningEvaluations   uint64
	criticalEvaluations  uint64
	emergencyEvaluations uint64
}

// New constructs an Engine at state NORMAL with the given cycle-count
// limits. Package system (System.SyncTimingLimits) derives
// criticalCountdownLimit and deescalationLimit from the configured
// millisecond windows and the current medium period and calls SetLimits;
// the scheduler runs it on reset and every medium cycle.
func New(criticalCountdownLimit, deescalationLimit, emergencyRecoveryLimit uint32) *Engine {
	e := &Engine{}
	e.SetLimits(criticalCountdownLimit, deescalationLimit, emergencyRecoveryLimit)
	return e
}

// SetLimits updates the three cycle-count limits in place, without
// resetting current state or counters. This is what lets a limit
// recomputation (triggered by a period change) preserve in-flight
// countdowns instead of restarting them — only the limit changes, not the
// accumulated count.
func (e *Engine) SetLimits(criticalCountdownLimit, deescalationLimit, emergencyRecoveryLimit uint32) {
	e.criticalCountdownLimit = clampLimit(criticalCountdownLimit)
	e.deescalationLimit = clampLimit(deescalationLimit)
	e.emergencyRecoveryLimit = clampLimit(emergencyRecoveryLimit)
}

func clampLimit(v uint32) uint32 {
	if v < 1 {
		return 1
	}
	if v > 65535 {
		return 65535
	}
	return v
}

// State returns the current escalation level.
func (e *Engine) State() State { return e.state }

// EmergencyLatched reports whether the EMERGENCY latch is currently set.
func (e *Engine) EmergencyLatched() bool { return e.emergencyLatched }

// HotspotModule, AnomalyModules, RiskFactor, and CascadeStage return the
// pass-through fields copied from the most recent Update call's Result.
func (e *Engine) HotspotModule() int                  { return e.hotspotModule }
func (e *Engine) AnomalyModules() anomaly.ModuleSet    { return e.anomalyModules }
func (e *Engine) RiskFactor() float64                 { return e.riskFactor }
func (e *Engine) CascadeStage() int                   { return e.cascadeStage }

// Counters returns the four monotone evaluation counters.
func (e *Engine) Counters() (total, warning, critical, emergency uint64) {
	return e.totalEvaluations, e.warningEvaluations, e.criticalEvaluations, e.emergencyEvaluations
}

// Update applies one evaluator Result and returns the resulting State.
// It is called exactly once per medium cycle (or inline from the fast
// slot on a short-circuit trip). Transition priority exactly follows
// spec §4.3: first match wins.
func (e *Engine) Update(r anomaly.Result) State {
	e.hotspotModule = r.HotspotModule
	e.anomalyModules = r.AnomalyModules
	e.riskFactor = r.RiskFactor
	e.cascadeStage = r.CascadeStage
	e.totalEvaluations++

	anyAnomaly := r.ActiveCount > 0 || r.IsShortCircuit || r.IsEmergencyDirect

	switch {
	case e.emergencyLatched:
		if anyAnomaly {
			e.emergencyRecoveryCount = 0
		} else {
			e.emergencyRecoveryCount++
			if e.emergencyRecoveryCount >= e.emergencyRecoveryLimit {
				e.clearLatch()
			}
		}
		// While still latched (clearLatch may have just run and left us
		// at NORMAL), report accordingly.
	case r.IsShortCircuit:
		e.enterEmergency()
	case r.IsEmergencyDirect:
		e.enterEmergency()
	case r.ActiveCount >= 3:
		e.enterEmergency()
	case r.ActiveCount == 2:
		if e.state != Critical {
			e.state = Critical
			e.criticalCountdown = 0
		} else {
			e.criticalCountdown++
		}
		e.deescalationCounter = 0
		if e.criticalCountdown >= e.criticalCountdownLimit {
			e.enterEmergency()
		}
	case r.ActiveCount == 1:
		e.state = Warning
		e.criticalCountdown = 0
		e.deescalationCounter = 0
	case r.ActiveCount == 0 && e.state != Normal:
		e.deescalationCounter++
		if e.deescalationCounter >= e.deescalationLimit {
			e.state = Normal
			e.deescalationCounter = 0
		}
		e.criticalCountdown = 0
	}

	e.bumpLevelCounters()
	return e.state
}

// HumanSummary produces a one-line debug-channel string summarizing the
// engine's current escalation level and the evaluator facts it last
// latched onto. Grounded on the original firmware's console print path
// (see SPEC_FULL.md "Supplemented features"), same idiom as
// pack.Snapshot.HumanSummary.
func (e *Engine) HumanSummary() string {
	return fmt.Sprintf("state=%s hotspot=m%d risk=%.2f stage=%d latched=%t counters(total=%d warn=%d crit=%d emerg=%d)",
		e.state, e.hotspotModule, e.riskFactor, e.cascadeStage, e.emergencyLatched,
		e.totalEvaluations, e.warningEvaluations, e.criticalEvaluations, e.emergencyEvaluations)
}

func (e *Engine) enterEmergency() {
	e.state = Emergency
	e.emergencyLatched = true
	e.emergencyRecoveryCount = 0
}

func (e *Engine) clearLatch() {
	e.emergencyLatched = false
	e.emergencyRecoveryCount = 0
	e.criticalCountdown = 0
	e.deescalationCounter = 0
	e.state = Normal
}

func (e *Engine) bumpLevelCounters() {
	switch e.state {
	case Warning:
		e.warningEvaluations++
	case Critical:
		e.criticalEvaluations++
	case Emergency:
		e.emergencyEvaluations++
	}
}

// Reset re-initializes every field to the same values as a fresh New call
// with the same limits, per spec §4.3's reset operation. Monotone
// counters are part of engine state and are cleared too, matching "a
// power cycle starts at NORMAL, unlatched" (spec §6) — Reset is the
// explicit equivalent of a power cycle, not something normal operation
// calls.
func (e *Engine) Reset() {
	limits := [3]uint32{e.criticalCountdownLimit, e.deescalationLimit, e.emergencyRecoveryLimit}
	*e = Engine{}
	e.SetLimits(limits[0], limits[1], limits[2])
}
