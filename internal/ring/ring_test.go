// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryEmpty(t *testing.T) {
	var h History
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0.0, h.SlopePerMinute())
}

func TestHistorySingleSampleHasNoSlope(t *testing.T) {
	var h History
	h.Push(0, 30.0)
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 0.0, h.SlopePerMinute())
}

func TestHistoryLinearRiseOneDegreePerMinute(t *testing.T) {
	var h History
	h.Push(0, 30.0)
	h.Push(60000, 31.0)
	h.Push(120000, 32.0)
	h.Push(180000, 33.0)
	assert.InDelta(t, 1.0, h.SlopePerMinute(), 1e-9)
}

func TestHistoryEvictsOldestWhenFull(t *testing.T) {
	var h History
	for i := 0; i < Capacity+2; i++ {
		h.Push(uint32(i)*60000, float64(i))
	}
	assert.Equal(t, Capacity, h.Len())
	// Still a unit slope regardless of how many points were evicted.
	assert.InDelta(t, 1.0, h.SlopePerMinute(), 1e-9)
}

func TestHistoryReset(t *testing.T) {
	var h History
	h.Push(0, 1)
	h.Push(1000, 2)
	h.Reset()
	assert.Equal(t, 0, h.Len())
}
