// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package correlation

import (
	"testing"

	"github.com/shakebs/battsafe/anomaly"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	// critical hold 10000ms over a 500ms medium period -> 20 cycles;
	// de-escalation hold 5000ms over 500ms -> 10 cycles.
	return New(20, 10, 5)
}

func TestInitialStateIsNormal(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, Normal, e.State())
	assert.False(t, e.EmergencyLatched())
}

func TestShortCircuitLatchesEmergencyImmediately(t *testing.T) {
	e := newTestEngine()
	s := e.Update(anomaly.Result{IsShortCircuit: true})
	require.Equal(t, Emergency, s)
	assert.True(t, e.EmergencyLatched())
}

func TestEmergencyDirectLatchesImmediately(t *testing.T) {
	e := newTestEngine()
	s := e.Update(anomaly.Result{IsEmergencyDirect: true})
	require.Equal(t, Emergency, s)
	assert.True(t, e.EmergencyLatched())
}

func TestThreeActiveCategoriesIsImmediateEmergency(t *testing.T) {
	e := newTestEngine()
	s := e.Update(anomaly.Result{ActiveCount: 3})
	require.Equal(t, Emergency, s)
	assert.True(t, e.EmergencyLatched())
}

func TestSingleCategoryIsWarning(t *testing.T) {
	e := newTestEngine()
	s := e.Update(anomaly.Result{ActiveCount: 1})
	assert.Equal(t, Warning, s)
}

func TestTwoCategoriesEntersCriticalThenEscalatesAfterHold(t *testing.T) {
	e := newTestEngine()
	s := e.Update(anomaly.Result{ActiveCount: 2})
	require.Equal(t, Critical, s)
	assert.False(t, e.EmergencyLatched())

	for i := uint32(0); i < e.criticalCountdownLimit; i++ {
		s = e.Update(anomaly.Result{ActiveCount: 2})
	}
	assert.Equal(t, Emergency, s)
	assert.True(t, e.EmergencyLatched())
}

func TestZeroCategoriesDeescalatesAfterHold(t *testing.T) {
	e := newTestEngine()
	e.Update(anomaly.Result{ActiveCount: 1}) // WARNING
	var s State
	for i := uint32(0); i < e.deescalationLimit; i++ {
		s = e.Update(anomaly.Result{ActiveCount: 0})
	}
	assert.Equal(t, Normal, s)
}

func TestSingleDipDoesNotHideRecurringCondition(t *testing.T) {
	e := newTestEngine()
	e.Update(anomaly.Result{ActiveCount: 1}) // WARNING
	e.Update(anomaly.Result{ActiveCount: 0}) // one nominal dip
	s := e.Update(anomaly.Result{ActiveCount: 1})
	assert.Equal(t, Warning, s)
	assert.Equal(t, uint32(0), e.deescalationCounter)
}

func TestLatchedRecoveryClearsAfterSustainedNominal(t *testing.T) {
	e := newTestEngine()
	e.Update(anomaly.Result{IsEmergencyDirect: true})
	require.True(t, e.EmergencyLatched())

	var s State
	for i := uint32(0); i < e.emergencyRecoveryLimit; i++ {
		s = e.Update(anomaly.Result{})
	}
	assert.Equal(t, Normal, s)
	assert.False(t, e.EmergencyLatched())
}

func TestInterveningAnomalyDuringRecoveryResetsCounter(t *testing.T) {
	e := newTestEngine()
	e.Update(anomaly.Result{IsEmergencyDirect: true})

	for i := uint32(0); i < e.emergencyRecoveryLimit-1; i++ {
		e.Update(anomaly.Result{})
	}
	// One intervening anomalous update just before the limit would have
	// been reached.
	s := e.Update(anomaly.Result{ActiveCount: 1})
	assert.Equal(t, Emergency, s)
	assert.True(t, e.EmergencyLatched())
	assert.Equal(t, uint32(0), e.emergencyRecoveryCount)
}

func TestOnlyRecoveryPathClearsLatch(t *testing.T) {
	e := newTestEngine()
	e.Update(anomaly.Result{IsShortCircuit: true})
	require.True(t, e.EmergencyLatched())

	// Nothing except sustained nominal cycles through Update can clear
	// the latch; a single nominal cycle must not.
	e.Update(anomaly.Result{})
	assert.True(t, e.EmergencyLatched())
	assert.Equal(t, Emergency, e.State())
}

func TestResetRestoresFreshState(t *testing.T) {
	e := newTestEngine()
	e.Update(anomaly.Result{IsShortCircuit: true})
	e.Reset()
	assert.Equal(t, Normal, e.State())
	assert.False(t, e.EmergencyLatched())
	total, warn, crit, emer := e.Counters()
	assert.Zero(t, total)
	assert.Zero(t, warn)
	assert.Zero(t, crit)
	assert.Zero(t, emer)
}

func TestSetLimitsPreservesInFlightCountdown(t *testing.T) {
	e := newTestEngine()
	e.Update(anomaly.Result{ActiveCount: 2}) // enters CRITICAL, countdown 0
	e.Update(anomaly.Result{ActiveCount: 2}) // countdown 1
	e.Update(anomaly.Result{ActiveCount: 2}) // countdown 2

	e.SetLimits(5, 10, 5)
	assert.Equal(t, uint32(2), e.criticalCountdown)
	assert.Equal(t, uint32(5), e.criticalCountdownLimit)
}
