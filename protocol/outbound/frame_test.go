// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package outbound

import (
	"testing"

	"github.com/shakebs/battsafe/anomaly"
	"github.com/shakebs/battsafe/correlation"
	"github.com/shakebs/battsafe/pack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalSnapshot() *pack.Snapshot {
	s := &pack.Snapshot{
		PackVoltage:    332.8,
		PackCurrentA:   60,
		RIntMilliOhm:   0.44,
		AmbientC:       25,
		CoolantInC:     24,
		CoolantOutC:    26,
		GasRatio1:      0.98,
		GasRatio2:      0.97,
		PressureDelta1: 0.1,
		PressureDelta2: 0.1,
		HumidityPct:    40,
		IsolationMOhm:  500,
	}
	for i := range s.Modules {
		m := &s.Modules[i]
		m.NTC1 = 29
		m.NTC2 = 29
		m.SwellingPct = 0.5
		for g := range m.GroupVoltages {
			m.GroupVoltages[g] = 332.8 / 104
		}
	}
	pack.Compute(s)
	return s
}

func TestEncodePackSummaryValidatesAndDecodes(t *testing.T) {
	s := normalSnapshot()
	r := anomaly.Result{ActiveCount: 1, RiskFactor: 0.25, CascadeStage: 2}
	buf := EncodePackSummary(123456, s, r, correlation.Warning)

	require.Len(t, buf, PackSummarySize)
	require.True(t, Validate(buf))

	d := DecodePackSummary(buf)
	assert.Equal(t, uint32(123456), d.TimestampMs)
	assert.Equal(t, uint8(correlation.Warning), d.SystemState)
	assert.Equal(t, uint8(1), d.AnomalyCount)
	assert.Equal(t, uint8(25), d.RiskFactorPct)
	assert.Equal(t, uint8(2), d.CascadeStage)
}

func TestEncodePackSummarySetsEmergencyFlag(t *testing.T) {
	s := normalSnapshot()
	r := anomaly.Result{IsEmergencyDirect: true}
	buf := EncodePackSummary(0, s, r, correlation.Emergency)
	d := DecodePackSummary(buf)
	assert.Equal(t, uint8(0x01), d.Flags&0x01)
}

func TestEncodeModuleDetailRoundTrips(t *testing.T) {
	s := normalSnapshot()
	buf := EncodeModuleDetail(3, &s.Modules[3])

	require.Len(t, buf, ModuleDetailSize)
	require.True(t, Validate(buf))

	d := DecodeModuleDetail(buf)
	assert.Equal(t, uint8(3), d.ModuleIndex)
	assert.InDelta(t, 29.0, float64(d.NTC1DT)/10, 0.01)
}

func TestSingleByteFlipFailsValidation(t *testing.T) {
	s := normalSnapshot()
	buf := EncodeModuleDetail(0, &s.Modules[0])
	buf[5] ^= 0x01
	assert.False(t, Validate(buf))
}

func TestGasRatioClampsToDocumentedRange(t *testing.T) {
	s := normalSnapshot()
	s.GasRatio1 = 1.5
	s.GasRatio2 = -1
	buf := EncodePackSummary(0, s, anomaly.Result{}, correlation.Normal)
	d := DecodePackSummary(buf)
	assert.Equal(t, uint8(100), d.GasRatio1X100)
	assert.Equal(t, uint8(0), d.GasRatio2X100)
}
