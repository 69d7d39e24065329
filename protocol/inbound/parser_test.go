// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package inbound

import (
	"encoding/binary"
	"testing"

	"github.com/shakebs/battsafe/protocol/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPackFrameBytes(f PackFrame) []byte {
	buf := make([]byte, PackFrameSize)
	buf[0] = frame.SyncInbound
	buf[1] = byte(PackFrameSize)
	buf[2] = TypePack
	b := buf[3:]
	binary.LittleEndian.PutUint16(b[0:2], f.PackVoltageDV)
	binary.LittleEndian.PutUint16(b[2:4], uint16(f.PackCurrentDA))
	binary.LittleEndian.PutUint16(b[4:6], uint16(f.AmbientDT))
	binary.LittleEndian.PutUint16(b[6:8], uint16(f.CoolantInletDT))
	binary.LittleEndian.PutUint16(b[8:10], uint16(f.CoolantOutletDT))
	binary.LittleEndian.PutUint16(b[10:12], f.GasRatio1CP)
	binary.LittleEndian.PutUint16(b[12:14], f.GasRatio2CP)
	binary.LittleEndian.PutUint16(b[14:16], uint16(f.PressureDelta1CHPa))
	binary.LittleEndian.PutUint16(b[16:18], uint16(f.PressureDelta2CHPa))
	b[18] = f.HumidityPct
	binary.LittleEndian.PutUint16(b[19:21], f.IsolationMOhmX10)
	buf[PackFrameSize-1] = frame.Checksum(buf[:PackFrameSize-1])
	return buf
}

func buildModuleFrameBytes(f ModuleFrame) []byte {
	buf := make([]byte, ModuleFrameSize)
	buf[0] = frame.SyncInbound
	buf[1] = byte(ModuleFrameSize)
	buf[2] = TypeModule
	b := buf[3:]
	b[0] = f.ModuleIndex
	binary.LittleEndian.PutUint16(b[1:3], uint16(f.NTC1DT))
	binary.LittleEndian.PutUint16(b[3:5], uint16(f.NTC2DT))
	b[5] = f.SwellingPct
	binary.LittleEndian.PutUint16(b[6:8], f.VBaseMV)
	for i := 0; i < 13; i++ {
		b[8+i] = byte(f.VDelta[i])
	}
	buf[ModuleFrameSize-1] = frame.Checksum(buf[:ModuleFrameSize-1])
	return buf
}

func feedAll(p *Parser, bs []byte) Status {
	var last Status
	for _, b := range bs {
		last = p.Feed(b)
	}
	return last
}

func samplePackFrame() PackFrame {
	return PackFrame{
		PackVoltageDV:      3328,
		PackCurrentDA:      600,
		AmbientDT:          250,
		CoolantInletDT:     220,
		CoolantOutletDT:    260,
		GasRatio1CP:        98,
		GasRatio2CP:        97,
		PressureDelta1CHPa: 10,
		PressureDelta2CHPa: 10,
		HumidityPct:        45,
		IsolationMOhmX10:   5000,
	}
}

func sampleModuleFrame(idx uint8) ModuleFrame {
	f := ModuleFrame{
		ModuleIndex: idx,
		NTC1DT:      290,
		NTC2DT:      300,
		SwellingPct: 1,
		VBaseMV:     3280,
	}
	for i := range f.VDelta {
		f.VDelta[i] = int8(i - 6)
	}
	return f
}

func TestParserDecodesPackFrame(t *testing.T) {
	p := NewParser()
	s := feedAll(p, buildPackFrameBytes(samplePackFrame()))
	assert.Equal(t, FrameParsed, s)
	assert.Equal(t, samplePackFrame(), p.LastPack)
}

func TestParserDecodesModuleFrame(t *testing.T) {
	p := NewParser()
	s := feedAll(p, buildModuleFrameBytes(sampleModuleFrame(3)))
	assert.Equal(t, FrameParsed, s)
	assert.Equal(t, sampleModuleFrame(3), p.LastModules[3])
}

func TestGroupVoltageReconstruction(t *testing.T) {
	f := sampleModuleFrame(0)
	assert.InDelta(t, 3.274, f.GroupVoltage(0), 1e-9)
}

func TestParserSignalsCycleReadyOnLastModule(t *testing.T) {
	p := NewParser()
	feedAll(p, buildPackFrameBytes(samplePackFrame()))
	for i := uint8(0); i < 7; i++ {
		s := feedAll(p, buildModuleFrameBytes(sampleModuleFrame(i)))
		assert.Equal(t, FrameParsed, s)
	}
	s := feedAll(p, buildModuleFrameBytes(sampleModuleFrame(7)))
	assert.Equal(t, CycleReady, s)
	assert.True(t, p.HasFullSnapshot())
}

func TestParserAcceptsFillerBeforeSync(t *testing.T) {
	p := NewParser()
	filler := []byte{0x00, 0xFF, 0x11}
	s := feedAll(p, append(filler, buildPackFrameBytes(samplePackFrame())...))
	assert.Equal(t, FrameParsed, s)
}

func TestParserAcceptsModulesBeforePack(t *testing.T) {
	p := NewParser()
	feedAll(p, buildModuleFrameBytes(sampleModuleFrame(0)))
	for i := uint8(1); i < 8; i++ {
		feedAll(p, buildModuleFrameBytes(sampleModuleFrame(i)))
	}
	s := feedAll(p, buildPackFrameBytes(samplePackFrame()))
	assert.Equal(t, CycleReady, s)
}

func TestResetCycleClearsPresenceNotData(t *testing.T) {
	p := NewParser()
	feedAll(p, buildPackFrameBytes(samplePackFrame()))
	for i := uint8(0); i < 8; i++ {
		feedAll(p, buildModuleFrameBytes(sampleModuleFrame(i)))
	}
	require.True(t, p.HasFullSnapshot())
	p.ResetCycle()
	assert.False(t, p.HasFullSnapshot())
	assert.Equal(t, samplePackFrame(), p.LastPack)
}

func TestParserRejectsBadLength(t *testing.T) {
	p := NewParser()
	buf := buildPackFrameBytes(samplePackFrame())
	buf[1] = byte(PackFrameSize + 1)
	feedAll(p, buf)
	assert.GreaterOrEqual(t, p.Stats().BadLength, uint32(1))
}

func TestParserRejectsUnknownType(t *testing.T) {
	p := NewParser()
	buf := buildPackFrameBytes(samplePackFrame())
	buf[2] = 0x7F
	feedAll(p, buf)
	assert.GreaterOrEqual(t, p.Stats().UnknownType, uint32(1))
}

func TestParserRejectsBadChecksum(t *testing.T) {
	p := NewParser()
	buf := buildPackFrameBytes(samplePackFrame())
	buf[len(buf)-1] ^= 0xFF
	feedAll(p, buf)
	assert.GreaterOrEqual(t, p.Stats().BadChecksum, uint32(1))
}

func TestParserResyncsAfterGarbage(t *testing.T) {
	p := NewParser()
	garbage := []byte{0xBB, 0x05, 0x01, 0x00, 0x00}
	good := buildPackFrameBytes(samplePackFrame())
	s := feedAll(p, append(garbage, good...))
	assert.Equal(t, FrameParsed, s)
	assert.Equal(t, samplePackFrame(), p.LastPack)
}

func TestSingleByteFlipFailsChecksum(t *testing.T) {
	buf := buildModuleFrameBytes(sampleModuleFrame(5))
	buf[10] ^= 0x01
	p := NewParser()
	feedAll(p, buf)
	assert.GreaterOrEqual(t, p.Stats().BadChecksum, uint32(1))
}
