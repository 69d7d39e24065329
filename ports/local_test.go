// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package ports

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWallClockStartsNearZero(t *testing.T) {
	c := NewWallClock()
	assert.Less(t, c.NowMs(), uint32(50))
}

func TestWallClockAdvances(t *testing.T) {
	c := NewWallClock()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, c.NowMs(), uint32(5))
}

func TestReaderByteSourceYieldsBytesThenFalse(t *testing.T) {
	s := NewReaderByteSource(strings.NewReader("ab"))

	b, ok := s.ReadByte()
	assert.True(t, ok)
	assert.Equal(t, byte('a'), b)

	b, ok = s.ReadByte()
	assert.True(t, ok)
	assert.Equal(t, byte('b'), b)

	_, ok = s.ReadByte()
	assert.False(t, ok)
}

func TestLoggingOutputDriverContactorOpenIsIdempotent(t *testing.T) {
	var events []string
	d := NewLoggingOutputDriver(func(event string, fields map[string]any) {
		events = append(events, event)
	})

	d.ContactorOpen()
	d.ContactorOpen()
	assert.Equal(t, []string{"contactor_open"}, events)

	assert.NoError(t, d.ContactorClose())
	d.ContactorOpen()
	assert.Equal(t, []string{"contactor_open", "contactor_close", "contactor_open"}, events)
}
