// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package outbound encodes the telemetry the supervisor emits once per
// slow cycle: one pack-summary frame followed by eight module-detail
// frames, both framed as [sync | length | type | payload | xor_checksum].
package outbound

import (
	"encoding/binary"

	"github.com/shakebs/battsafe/anomaly"
	"github.com/shakebs/battsafe/correlation"
	"github.com/shakebs/battsafe/pack"
	"github.com/shakebs/battsafe/protocol/frame"
)

const (
	TypePackSummary  byte = 0x01
	TypeModuleDetail byte = 0x02

	PackSummarySize  = 38
	ModuleDetailSize = 17
)

// EncodePackSummary builds one pack-summary frame for timestampMs using
// the just-computed snapshot, evaluator result, and correlation state.
func EncodePackSummary(timestampMs uint32, s *pack.Snapshot, r anomaly.Result, state correlation.State) []byte {
	buf := make([]byte, PackSummarySize)
	buf[0] = frame.SyncOutbound
	buf[1] = byte(PackSummarySize)
	buf[2] = TypePackSummary

	b := buf[3:]
	binary.LittleEndian.PutUint32(b[0:4], timestampMs)
	binary.LittleEndian.PutUint16(b[4:6], frame.ClampU16Deci(s.PackVoltage))
	binary.LittleEndian.PutUint16(b[6:8], uint16(frame.ClampI16Deci(s.PackCurrentA)))
	binary.LittleEndian.PutUint16(b[8:10], frame.ClampU16Centi(s.RIntMilliOhm))
	binary.LittleEndian.PutUint16(b[10:12], uint16(frame.ClampI16Deci(s.HotspotTempC)))
	binary.LittleEndian.PutUint16(b[12:14], uint16(frame.ClampI16Deci(s.AmbientC)))
	binary.LittleEndian.PutUint16(b[14:16], uint16(frame.ClampI16Deci(s.TCoreEstC)))
	b[16] = frame.ClampU8Scaled(s.DTDtMaxCPerMin, 100)
	b[17] = frame.ClampU8Range(s.GasRatio1, 100, 0, 100)
	b[18] = frame.ClampU8Range(s.GasRatio2, 100, 0, 100)
	binary.LittleEndian.PutUint16(b[19:21], uint16(frame.ClampI16Centi(s.PressureDelta1)))
	binary.LittleEndian.PutUint16(b[21:23], uint16(frame.ClampI16Centi(s.PressureDelta2)))
	binary.LittleEndian.PutUint16(b[23:25], frame.ClampU16Deci(s.VSpreadMV))
	b[25] = frame.ClampU8Scaled(s.TempSpreadC, 10)
	b[26] = byte(state)
	b[27] = r.Categories.Raw()
	b[28] = byte(r.ActiveCount)
	b[29] = r.AnomalyModules.Raw()
	b[30] = byte(s.HotspotModule)
	b[31] = frame.ClampU8Scaled(r.RiskFactor, 100)
	b[32] = byte(r.CascadeStage)

	var flags byte
	if r.IsEmergencyDirect {
		flags |= 0x01
	}
	b[33] = flags

	buf[PackSummarySize-1] = frame.Checksum(buf[:PackSummarySize-1])
	return buf
}

// EncodeModuleDetail builds one module-detail frame for module index idx
// (0-based) from its computed sample.
func EncodeModuleDetail(idx int, m *pack.ModuleSample) []byte {
	buf := make([]byte, ModuleDetailSize)
	buf[0] = frame.SyncOutbound
	buf[1] = byte(ModuleDetailSize)
	buf[2] = TypeModuleDetail

	b := buf[3:]
	b[0] = byte(idx)
	binary.LittleEndian.PutUint16(b[1:3], uint16(frame.ClampI16Deci(m.NTC1)))
	binary.LittleEndian.PutUint16(b[3:5], uint16(frame.ClampI16Deci(m.NTC2)))
	b[5] = frame.ClampU8(m.SwellingPct)
	b[6] = frame.ClampU8Scaled(m.DeltaTIntra, 10)
	b[7] = frame.ClampU8Scaled(m.MaxDTDt, 100)
	binary.LittleEndian.PutUint16(b[8:10], frame.ClampU16Deci(m.ModuleVoltage))
	binary.LittleEndian.PutUint16(b[10:12], frame.ClampU16Scaled(m.VSpreadMV, 1))
	b[12] = 0 // reserved

	buf[ModuleDetailSize-1] = frame.Checksum(buf[:ModuleDetailSize-1])
	return buf
}

// DecodedPackSummary is the field-by-field view of a pack-summary frame,
// used by tests and dashboard-side tooling to verify the encoder bit for
// bit rather than only trusting Validate's checksum pass.
type DecodedPackSummary struct {
	TimestampMs       uint32
	PackVoltageDV     uint16
	PackCurrentDA     int16
	RIntCentiMilliOhm uint16
	MaxNTCDT          int16
	AmbientDT         int16
	CoreTempDT        int16
	DTDtMaxX100       uint8
	GasRatio1X100     uint8
	GasRatio2X100     uint8
	PressureDelta1CHPa int16
	PressureDelta2CHPa int16
	VSpreadDeciMV     uint16
	TempSpreadDeciC   uint8
	SystemState       uint8
	AnomalyMask       uint8
	AnomalyCount      uint8
	AnomalyModulesMask uint8
	HotspotModule     uint8
	RiskFactorPct     uint8
	CascadeStage      uint8
	Flags             uint8
}

// DecodePackSummary reads a PackSummarySize-byte buffer (sync through
// checksum) into a DecodedPackSummary. Callers that need validation should
// call Validate first.
func DecodePackSummary(buf []byte) DecodedPackSummary {
	var d DecodedPackSummary
	b := buf[3:]
	d.TimestampMs = binary.LittleEndian.Uint32(b[0:4])
	d.PackVoltageDV = binary.LittleEndian.Uint16(b[4:6])
	d.PackCurrentDA = int16(binary.LittleEndian.Uint16(b[6:8]))
	d.RIntCentiMilliOhm = binary.LittleEndian.Uint16(b[8:10])
	d.MaxNTCDT = int16(binary.LittleEndian.Uint16(b[10:12]))
	d.AmbientDT = int16(binary.LittleEndian.Uint16(b[12:14]))
	d.CoreTempDT = int16(binary.LittleEndian.Uint16(b[14:16]))
	d.DTDtMaxX100 = b[16]
	d.GasRatio1X100 = b[17]
	d.GasRatio2X100 = b[18]
	d.PressureDelta1CHPa = int16(binary.LittleEndian.Uint16(b[19:21]))
	d.PressureDelta2CHPa = int16(binary.LittleEndian.Uint16(b[21:23]))
	d.VSpreadDeciMV = binary.LittleEndian.Uint16(b[23:25])
	d.TempSpreadDeciC = b[25]
	d.SystemState = b[26]
	d.AnomalyMask = b[27]
	d.AnomalyCount = b[28]
	d.AnomalyModulesMask = b[29]
	d.HotspotModule = b[30]
	d.RiskFactorPct = b[31]
	d.CascadeStage = b[32]
	d.Flags = b[33]
	return d
}

// DecodedModuleDetail is the field-by-field view of a module-detail frame.
type DecodedModuleDetail struct {
	ModuleIndex     uint8
	NTC1DT          int16
	NTC2DT          int16
	SwellingPct     uint8
	DeltaTIntraDeci uint8
	MaxDTDtX100     uint8
	ModuleVoltageDV uint16
	VSpreadMV       uint16
}

// DecodeModuleDetail reads a ModuleDetailSize-byte buffer into a
// DecodedModuleDetail.
func DecodeModuleDetail(buf []byte) DecodedModuleDetail {
	var d DecodedModuleDetail
	b := buf[3:]
	d.ModuleIndex = b[0]
	d.NTC1DT = int16(binary.LittleEndian.Uint16(b[1:3]))
	d.NTC2DT = int16(binary.LittleEndian.Uint16(b[3:5]))
	d.SwellingPct = b[5]
	d.DeltaTIntraDeci = b[6]
	d.MaxDTDtX100 = b[7]
	d.ModuleVoltageDV = binary.LittleEndian.Uint16(b[8:10])
	d.VSpreadMV = binary.LittleEndian.Uint16(b[10:12])
	return d
}

// Validate recomputes the checksum and re-checks sync/length/type against
// the frame's own declared length byte, returning false on any mismatch.
func Validate(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	if buf[0] != frame.SyncOutbound {
		return false
	}
	declaredLen := int(buf[1])
	if declaredLen != len(buf) {
		return false
	}
	switch buf[2] {
	case TypePackSummary:
		if declaredLen != PackSummarySize {
			return false
		}
	case TypeModuleDetail:
		if declaredLen != ModuleDetailSize {
			return false
		}
	default:
		return false
	}
	return frame.Checksum(buf[:declaredLen-1]) == buf[declaredLen-1]
}
