// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package scheduler runs the three cooperative slots (fast/medium/slow)
// that drive the decision pipeline, on plain virtual milliseconds rather
// than real goroutines or timers: a caller ticks it forward, and it runs
// whichever slots have come due, entirely on the caller's goroutine. There
// is exactly one Scheduler per running supervisor and it owns the one
// *system.System instance for its lifetime, per spec §9's statics removal.
package scheduler

import (
	"github.com/shakebs/battsafe/correlation"
	"github.com/shakebs/battsafe/pack"
	"github.com/shakebs/battsafe/ports"
	"github.com/shakebs/battsafe/protocol/inbound"
	"github.com/shakebs/battsafe/protocol/outbound"
	"github.com/shakebs/battsafe/system"
)

// Nominal and alert periods, milliseconds, for each slot.
const (
	FastNormalMs = 100
	FastAlertMs  = 20

	MediumNormalMs = 500
	MediumAlertMs  = 100

	SlowNormalMs   = 5000
	SlowAlertMs    = 1000
	SlowExternalMs = 1000

	// ExternalInputTimeoutMs is how long the parser can go without
	// completing a cycle before the scheduler treats the digital twin as
	// disconnected and stops tightening the slow slot on its account.
	ExternalInputTimeoutMs = 2000
)

// emergencyPulseFastMs and emergencyPulseMediumMs are the annunciator
// pulse durations asserted from the fast and medium slots respectively,
// matching the asymmetry in the source control loop (a short-circuit trip
// sounds louder/longer than a medium-cycle escalation into EMERGENCY).
const (
	emergencyPulseFastMs   = 1000
	emergencyPulseMediumMs = 500
)

// TransitionFunc is called whenever the medium slot's correlation update
// changes state, with the previous and new states. Scheduler never calls
// it with prev == next.
type TransitionFunc func(prev, next correlation.State)

// Scheduler owns the System and the ports it drives against. Construct
// with New; the zero value is not ready to use.
type Scheduler struct {
	Sys    *system.System
	clock  ports.Clock
	bytes  ports.ByteSource
	output ports.OutputDriver
	sink   TelemetrySink

	fastPeriodMs, medPeriodMs, slowPeriodMs uint32
	nextFastMs, nextMedMs, nextSlowMs       uint32

	externalInputActive bool
	lastExternalMs       uint32

	OnTransition TransitionFunc
}

// TelemetrySink is where the slow slot's outbound frames go. *os.File,
// a net.Conn, or any io.Writer satisfies it; kept as its own named type
// (rather than importing io directly in the exported signature) so a
// future non-byte-stream sink (a channel, a pub/sub publisher) can
// implement it too without dragging io into its API.
type TelemetrySink interface {
	Write(p []byte) (n int, err error)
}

// New constructs a Scheduler around sys, wired to clock/bytes/output/sink,
// and resets its timing state to nominal periods starting at clock.NowMs().
func New(sys *system.System, clock ports.Clock, bytes ports.ByteSource, output ports.OutputDriver, sink TelemetrySink) *Scheduler {
	sc := &Scheduler{
		Sys:    sys,
		clock:  clock,
		bytes:  bytes,
		output: output,
		sink:   sink,
	}
	sc.Reset()
	return sc
}

// Reset returns every slot to its nominal period with fresh deadlines
// starting now, clears the external-input tracking, and resyncs the
// engine's cycle-count limits. Equivalent to a power-on reset of the
// scheduler's own state (the System it owns is untouched).
func (sc *Scheduler) Reset() {
	now := sc.clock.NowMs()
	sc.fastPeriodMs = FastNormalMs
	sc.medPeriodMs = MediumNormalMs
	sc.slowPeriodMs = SlowNormalMs
	sc.nextFastMs = now
	sc.nextMedMs = now
	sc.nextSlowMs = now
	sc.externalInputActive = false
	sc.Sys.SyncTimingLimits(sc.medPeriodMs)
}

// Tick drains any pending inbound bytes and runs whichever slots are due
// at the clock's current time. Call it as often as the caller likes; slots
// that aren't due yet are no-ops.
func (sc *Scheduler) Tick() {
	now := sc.clock.NowMs()

	sc.drainInbound(now)
	sc.checkExternalTimeout(now)

	if now >= sc.nextFastMs {
		sc.fastSlot(now)
		sc.nextFastMs = now + sc.fastPeriodMs
	}
	if now >= sc.nextMedMs {
		sc.medSlot(now)
		sc.nextMedMs = now + sc.medPeriodMs
	}
	if now >= sc.nextSlowMs {
		sc.slowSlot(now)
		sc.nextSlowMs = now + sc.slowPeriodMs
	}
}

// drainInbound feeds every currently-available byte into the parser,
// applying a completed cycle to the snapshot as soon as one closes and
// marking the digital twin as the currently active external input source.
func (sc *Scheduler) drainInbound(now uint32) {
	for {
		b, ok := sc.bytes.ReadByte()
		if !ok {
			return
		}
		if sc.Sys.Parser.Feed(b) == inbound.CycleReady {
			sc.Sys.ApplyInboundCycle()
			sc.lastExternalMs = now
			sc.externalInputActive = true
		}
	}
}

// checkExternalTimeout drops externalInputActive once the digital twin has
// gone quiet for longer than ExternalInputTimeoutMs. The snapshot is left
// as its last-known values; there is no internal simulation fallback in
// this build.
func (sc *Scheduler) checkExternalTimeout(now uint32) {
	if sc.externalInputActive && now-sc.lastExternalMs > ExternalInputTimeoutMs {
		sc.externalInputActive = false
	}
}

// fastSlot checks the short-circuit trip each time the fast slot comes
// due and, if the pack
// current exceeds the short threshold, forces an immediate evaluation and
// correlation update instead of waiting for the medium slot.
func (sc *Scheduler) fastSlot(now uint32) {
	snap := &sc.Sys.Snapshot
	if absF(snap.PackCurrentA) <= sc.Sys.Thresholds.CurrentShortA {
		return
	}

	snap.ShortCircuit = true
	sc.Sys.Evaluate()
	prev := sc.Sys.Engine.State()
	next := sc.Sys.UpdateEngine()
	if next != prev && sc.OnTransition != nil {
		sc.OnTransition(prev, next)
	}
	sc.applySamplingRates(now)

	if next == correlation.Emergency {
		sc.assertEmergencyOutputs(emergencyPulseFastMs)
	}
}

// medSlot is the pipeline's main cadence: refresh rate fields, recompute
// derived facts, evaluate, resync the engine's timing windows to the
// current medium period, update the engine, report the new state, and
// re-derive the sampling rates for the next cycle.
func (sc *Scheduler) medSlot(now uint32) {
	sc.Sys.UpdateRates(now)
	sc.Sys.Evaluate()
	sc.Sys.SyncTimingLimits(sc.medPeriodMs)

	prev := sc.Sys.Engine.State()
	next := sc.Sys.UpdateEngine()
	if next != prev && sc.OnTransition != nil {
		sc.OnTransition(prev, next)
	}

	sc.output.StatusLevel(uint8(next))
	if next == correlation.Emergency {
		sc.assertEmergencyOutputs(emergencyPulseMediumMs)
	}

	sc.applySamplingRates(now)
}

// slowSlot emits one pack-summary frame followed by eight module-detail
// frames to the telemetry sink. It never changes sampling rates itself;
// the source control loop only retunes rates from its fast and medium
// slots.
func (sc *Scheduler) slowSlot(now uint32) {
	if sc.sink == nil {
		return
	}
	snap := &sc.Sys.Snapshot
	sc.sink.Write(outbound.EncodePackSummary(now, snap, sc.Sys.Result, sc.Sys.Engine.State()))
	for i := 0; i < pack.Modules; i++ {
		sc.sink.Write(outbound.EncodeModuleDetail(i, &snap.Modules[i]))
	}
}

// assertEmergencyOutputs opens the contactor and sounds the annunciator
// for pulseMs. Safe to call every cycle EMERGENCY holds; ContactorOpen is
// required to be idempotent.
func (sc *Scheduler) assertEmergencyOutputs(pulseMs uint32) {
	sc.output.ContactorOpen()
	sc.output.AnnunciatorPulse(pulseMs)
}

// isAlertMode reports whether the supervisor should run its tightened
// (alert) sampling periods: a live short-circuit flag, any active anomaly
// category, or any non-NORMAL correlation state.
func (sc *Scheduler) isAlertMode() bool {
	return sc.Sys.Snapshot.ShortCircuit ||
		sc.Sys.Result.ActiveCount > 0 ||
		sc.Sys.Engine.State() != correlation.Normal
}

// applySamplingRates recomputes the target period for each slot from the
// current alert mode, tightens the slow slot further while external input
// is active, and pulls forward only deadlines a shortened period would
// otherwise miss — a still-future deadline under the old, longer period is
// never pushed later, and one under the new, shorter period is never left
// unmet.
func (sc *Scheduler) applySamplingRates(now uint32) {
	targetFast, targetMed, targetSlow := uint32(FastNormalMs), uint32(MediumNormalMs), uint32(SlowNormalMs)
	if sc.isAlertMode() {
		targetFast, targetMed, targetSlow = FastAlertMs, MediumAlertMs, SlowAlertMs
	}
	if sc.externalInputActive && targetSlow > SlowExternalMs {
		targetSlow = SlowExternalMs
	}

	sc.fastPeriodMs = targetFast
	sc.medPeriodMs = targetMed
	sc.slowPeriodMs = targetSlow

	pullForward(&sc.nextFastMs, now, targetFast)
	pullForward(&sc.nextMedMs, now, targetMed)
	pullForward(&sc.nextSlowMs, now, targetSlow)
}

// pullForward moves *deadline to now+period only if that is sooner than
// what's already scheduled; it never pushes a deadline later.
func pullForward(deadline *uint32, now, period uint32) {
	shortened := now + period
	if *deadline > shortened {
		*deadline = shortened
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
