// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package inbound

import "github.com/shakebs/battsafe/protocol/frame"

// Status is the tri-state result of feeding one byte into a Parser.
type Status int

const (
	// None means no complete frame is available yet.
	None Status = iota
	// FrameParsed means exactly one valid frame (pack or module) was
	// decoded and stored.
	FrameParsed
	// CycleReady means the frame just parsed was the last of the nine
	// (one pack plus all eight modules) needed to complete a cycle.
	CycleReady
)

// Stats counts frame-level rejections. These never affect decoded state;
// they exist only for observability.
type Stats struct {
	BadLength    uint32
	UnknownType  uint32
	BadChecksum  uint32
}

// Parser assembles a sliding byte stream into pack and module frames. It
// performs no dynamic allocation once constructed: the byte buffer is
// fixed-size, and LastPack/LastModules are values, not pointers into a
// growing slice.
//
// The zero value is not ready to use; construct with NewParser.
type Parser struct {
	buf      [rxBufSize]byte
	writePos int

	packReceived    bool
	modulesReceived uint8 // bitmask, bit i set iff module i received this cycle

	LastPack    PackFrame
	LastModules [8]ModuleFrame

	stats Stats
}

// NewParser constructs an empty Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends one byte from the digital-twin byte source and attempts to
// extract one frame from the front of the buffer. At most one frame is
// parsed per call; any further buffered frame is picked up on a later
// call as more bytes are fed — in practice the caller feeds one byte per
// call and this is naturally bounded.
func (p *Parser) Feed(b byte) Status {
	if p.writePos < len(p.buf) {
		p.buf[p.writePos] = b
		p.writePos++
	} else {
		// Overflow with no frame in sight: drop everything and resync on
		// this byte.
		p.writePos = 0
		p.buf[p.writePos] = b
		p.writePos++
		return None
	}
	return p.tryParseFrame()
}

func (p *Parser) tryParseFrame() Status {
	if p.writePos < 3 {
		return None
	}

	start := 0
	for start < p.writePos && p.buf[start] != frame.SyncInbound {
		start++
	}
	if start > 0 {
		p.discardFront(start)
	}
	if p.writePos < 3 {
		return None
	}

	frameLen := int(p.buf[1])
	frameType := p.buf[2]

	want := expectedSize(frameType)
	if want == 0 {
		p.reject(frame.ErrUnknownType)
		p.discardFront(1)
		return None
	}
	if frameLen != want {
		p.reject(frame.ErrBadLength)
		p.discardFront(1)
		return None
	}
	if p.writePos < frameLen {
		return None
	}

	expected := frame.Checksum(p.buf[:frameLen-1])
	if p.buf[frameLen-1] != expected {
		p.reject(frame.ErrBadChecksum)
		p.discardFront(1)
		return None
	}

	switch frameType {
	case TypePack:
		p.LastPack = decodePackFrame(p.buf[:frameLen])
		p.packReceived = true
	case TypeModule:
		mf := decodeModuleFrame(p.buf[:frameLen])
		if mf.ModuleIndex < 8 {
			p.LastModules[mf.ModuleIndex] = mf
			p.modulesReceived |= 1 << mf.ModuleIndex
		}
	}

	p.discardFront(frameLen)

	if p.packReceived && p.modulesReceived == 0xFF {
		return CycleReady
	}
	return FrameParsed
}

// reject classifies a rejected candidate frame by kind and bumps the
// matching Stats counter. The kind itself is never surfaced past this
// point.
func (p *Parser) reject(kind frame.FrameError) {
	switch kind {
	case frame.ErrBadLength:
		p.stats.BadLength++
	case frame.ErrUnknownType:
		p.stats.UnknownType++
	case frame.ErrBadChecksum:
		p.stats.BadChecksum++
	}
}

// discardFront drops the first n bytes of the buffer, shifting the rest
// down.
func (p *Parser) discardFront(n int) {
	remaining := p.writePos - n
	copy(p.buf[:remaining], p.buf[n:p.writePos])
	p.writePos = remaining
}

// HasFullSnapshot reports whether the pack frame and all eight module
// frames have been received since the last ResetCycle.
func (p *Parser) HasFullSnapshot() bool {
	return p.packReceived && p.modulesReceived == 0xFF
}

// ResetCycle clears the presence tracking for the next cycle without
// clearing the stored frames — the next cycle's evaluator still has last
// cycle's values for any channel not re-sent before the external-input
// timeout would otherwise demote the source.
func (p *Parser) ResetCycle() {
	p.packReceived = false
	p.modulesReceived = 0
}

// Stats returns the cumulative frame-rejection counters.
func (p *Parser) Stats() Stats { return p.stats }
