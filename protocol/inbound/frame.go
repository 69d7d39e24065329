// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package inbound decodes the digital-twin sensor feed: one pack frame
// plus eight module frames per cycle, each framed as
// [sync | length | type | payload | xor_checksum].
package inbound

import (
	"encoding/binary"
)

const (
	TypePack   byte = 0x01
	TypeModule byte = 0x02

	// PackFrameSize and ModuleFrameSize are the real wire sizes of each
	// frame type, computed field-by-field (header + payload + checksum).
	// The declared totals in the digital-twin's own frame comments round
	// to different, mutually inconsistent numbers; these are the sizes
	// that actually hold every documented field once, with the header and
	// checksum included, and are what the decoder validates a received
	// length byte against.
	PackFrameSize   = 25
	ModuleFrameSize = 25

	rxBufSize = 64
)

// PackFrame is one decoded pack-level frame.
type PackFrame struct {
	PackVoltageDV      uint16
	PackCurrentDA       int16
	AmbientDT           int16
	CoolantInletDT      int16
	CoolantOutletDT     int16
	GasRatio1CP         uint16
	GasRatio2CP         uint16
	PressureDelta1CHPa  int16
	PressureDelta2CHPa  int16
	HumidityPct         uint8
	IsolationMOhmX10    uint16
}

// ModuleFrame is one decoded module-level frame.
type ModuleFrame struct {
	ModuleIndex uint8
	NTC1DT      int16
	NTC2DT      int16
	SwellingPct uint8
	VBaseMV     uint16
	VDelta      [13]int8
}

// decodePackFrame reads a validated PackFrameSize-byte buffer (sync
// through checksum, already length- and checksum-checked) into a
// PackFrame.
func decodePackFrame(buf []byte) PackFrame {
	var f PackFrame
	b := buf[3:]
	f.PackVoltageDV = binary.LittleEndian.Uint16(b[0:2])
	f.PackCurrentDA = int16(binary.LittleEndian.Uint16(b[2:4]))
	f.AmbientDT = int16(binary.LittleEndian.Uint16(b[4:6]))
	f.CoolantInletDT = int16(binary.LittleEndian.Uint16(b[6:8]))
	f.CoolantOutletDT = int16(binary.LittleEndian.Uint16(b[8:10]))
	f.GasRatio1CP = binary.LittleEndian.Uint16(b[10:12])
	f.GasRatio2CP = binary.LittleEndian.Uint16(b[12:14])
	f.PressureDelta1CHPa = int16(binary.LittleEndian.Uint16(b[14:16]))
	f.PressureDelta2CHPa = int16(binary.LittleEndian.Uint16(b[16:18]))
	f.HumidityPct = b[18]
	f.IsolationMOhmX10 = binary.LittleEndian.Uint16(b[19:21])
	return f
}

// decodeModuleFrame reads a validated ModuleFrameSize-byte buffer into a
// ModuleFrame.
func decodeModuleFrame(buf []byte) ModuleFrame {
	var f ModuleFrame
	b := buf[3:]
	f.ModuleIndex = b[0]
	f.NTC1DT = int16(binary.LittleEndian.Uint16(b[1:3]))
	f.NTC2DT = int16(binary.LittleEndian.Uint16(b[3:5]))
	f.SwellingPct = b[5]
	f.VBaseMV = binary.LittleEndian.Uint16(b[6:8])
	for i := 0; i < 13; i++ {
		f.VDelta[i] = int8(b[8+i])
	}
	return f
}

// GroupVoltage reconstructs group g's voltage in volts from the
// base-plus-delta encoding.
func (f *ModuleFrame) GroupVoltage(g int) float64 {
	return float64(int(f.VBaseMV)+int(f.VDelta[g])) / 1000
}

// expectedSize returns the wire size a valid frame of typ must have, or 0
// for an unrecognized type.
func expectedSize(typ byte) int {
	switch typ {
	case TypePack:
		return PackFrameSize
	case TypeModule:
		return ModuleFrameSize
	default:
		return 0
	}
}
