// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package pack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func flatSnapshot(v, ntc float64) *Snapshot {
	var s Snapshot
	s.PackCurrentA = 60
	s.RIntMilliOhm = 0.44
	for i := range s.Modules {
		m := &s.Modules[i]
		m.NTC1 = ntc
		m.NTC2 = ntc
		for g := range m.GroupVoltages {
			m.GroupVoltages[g] = v
		}
	}
	return &s
}

func TestComputeSpreadsAreNonNegative(t *testing.T) {
	s := flatSnapshot(3.2, 28)
	s.Modules[5].GroupVoltages[3] = 3.25
	s.Modules[1].NTC2 = 31
	Compute(s)

	assert.GreaterOrEqual(t, s.VSpreadMV, 0.0)
	assert.GreaterOrEqual(t, s.TempSpreadC, 0.0)
}

func TestHotspotIsOneBasedOrZero(t *testing.T) {
	// Before Compute ever runs, HotspotModule sits at its zero value,
	// the documented "not yet computed" sentinel.
	var uncomputed Snapshot
	assert.Equal(t, 0, uncomputed.HotspotModule)

	s := flatSnapshot(3.2, 28)
	s.Modules[6].NTC1 = 50
	computeHotspot(s)
	assert.Equal(t, 7, s.HotspotModule)
	assert.GreaterOrEqual(t, s.HotspotModule, 1)
	assert.LessOrEqual(t, s.HotspotModule, Modules)
}

func TestHotspotTieBreaksToLowestIndex(t *testing.T) {
	s := flatSnapshot(3.2, 40)
	computeHotspot(s)
	assert.Equal(t, 1, s.HotspotModule)
}

// A NaN NTC reading on the first module becomes the hotspot by the
// hotspotIdx==-1 short-circuit in computeHotspot, but every downstream
// threshold comparison against a NaN hotspot temperature is false in Go,
// so a single bad sensor reading never spuriously fires THERMAL on its
// own.
func TestNaNFirstModuleDoesNotSpuriouslyFireThermal(t *testing.T) {
	s := flatSnapshot(3.2, 28)
	s.Modules[0].NTC1 = math.NaN()
	s.Modules[0].NTC2 = math.NaN()
	Compute(s)

	assert.Equal(t, 1, s.HotspotModule)
	assert.True(t, math.IsNaN(s.HotspotTempC))
	assert.True(t, math.IsNaN(s.TCoreEstC))
}

func TestCoolantDeltaIsOutletMinusInlet(t *testing.T) {
	s := flatSnapshot(3.2, 28)
	s.CoolantInC = 24
	s.CoolantOutC = 27
	Compute(s)
	assert.InDelta(t, 3.0, s.CoolantDeltaC, 1e-9)
}

func TestCascadeStageBoundaries(t *testing.T) {
	assert.Equal(t, 0, CascadeStage(60))
	assert.Equal(t, 1, CascadeStage(60.1))
	assert.Equal(t, 6, CascadeStage(301))
}
