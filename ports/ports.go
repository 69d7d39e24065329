// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package ports declares the narrow interfaces the scheduler needs from
// its external collaborators: a non-blocking byte source for the
// digital-twin feed, a monotonic clock, the contactor/annunciator output
// driver, and an optional direct sensor surface. Device-specific drivers,
// GPIO/I2C/UART/ADC access, and microcontroller register layouts that
// would implement these on real hardware are out of scope here; this
// package only specifies the boundary.
package ports

// ByteSource is a non-blocking byte source, one RX byte at a time.
type ByteSource interface {
	// ReadByte returns the next available byte and true, or ok=false if
	// none is currently available. It never blocks.
	ReadByte() (b byte, ok bool)
}

// Clock is a monotonic time source, milliseconds since boot (or since
// simulation start on a hosted build).
type Clock interface {
	NowMs() uint32
}

// OutputDriver is the contactor/status/annunciator surface. All of its
// methods must be safe to call from the scheduler's single execution
// context repeatedly; ContactorOpen in particular must be idempotent.
type OutputDriver interface {
	// StatusLevel reports the current escalation level: 0=NORMAL,
	// 1=WARNING, 2=CRITICAL, 3=EMERGENCY.
	StatusLevel(level uint8)

	// ContactorOpen electrically isolates the pack. Idempotent.
	ContactorOpen()

	// ContactorClose requests the pack be reconnected. An implementation
	// may refuse the request by returning an error. The safety-armed gate
	// itself lives in package system, not here, so an implementation does
	// not see it.
	ContactorClose() error

	// AnnunciatorPulse drives the audible/visible alarm for durationMs.
	AnnunciatorPulse(durationMs uint32)
}

// RawReading mirrors the raw (non-computed) channels of one pack.Snapshot,
// for a direct sensor driver surface as an alternative to the framed
// digital-twin feed.
type RawReading struct {
	PackVoltage    float64
	PackCurrentA   float64
	RIntMilliOhm   float64
	AmbientC       float64
	CoolantInC     float64
	CoolantOutC    float64
	GasRatio1      float64
	GasRatio2      float64
	PressureDelta1 float64
	PressureDelta2 float64
	HumidityPct    float64
	IsolationMOhm  float64
	ShortCircuit   bool

	ModuleGroupVoltages [8][13]float64
	ModuleNTC1          [8]float64
	ModuleNTC2          [8]float64
	ModuleSwellingPct   [8]float64
}

// SensorReader is the optional direct sensor driver surface: an
// alternative to the framed digital-twin feed for a build wired to real
// INA219/BME680/FSR/NTC-mux hardware instead of a byte-oriented UART link.
type SensorReader interface {
	ReadSnapshot() (RawReading, error)
}
