// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package ports

import (
	"bufio"
	"io"
	"time"
)

// WallClock is a Clock backed by time.Now, with milliseconds measured
// relative to the moment it was constructed so small durations don't lose
// precision to a large absolute epoch value.
type WallClock struct {
	start time.Time
}

// NewWallClock returns a WallClock zeroed at the current instant.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

func (c *WallClock) NowMs() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ReaderByteSource adapts an io.Reader (a serial port, a file, a pipe) into
// a ByteSource. Reads are buffered; when the buffer is empty, ReadByte
// waits for as long as the underlying reader's Read waits, so it returns
// without waiting only over readers that never wait for input, such as a
// regular file, and not over a pipe, a terminal or a serial port. io.EOF
// and any other read error are both reported as ok=false, so a finished
// file behaves like a quiet link.
type ReaderByteSource struct {
	r *bufio.Reader
}

// NewReaderByteSource wraps r for byte-at-a-time consumption.
func NewReaderByteSource(r io.Reader) *ReaderByteSource {
	return &ReaderByteSource{r: bufio.NewReader(r)}
}

func (s *ReaderByteSource) ReadByte() (byte, bool) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

// LoggingOutputDriver is an OutputDriver that reports every action through
// a structured logging function instead of touching real hardware. It is
// the default driver for hosted/simulated runs; a device build supplies
// its own GPIO-backed implementation of the same interface.
type LoggingOutputDriver struct {
	Log func(event string, fields map[string]any)

	contactorOpen bool
}

// NewLoggingOutputDriver returns a driver that calls log for every action.
// A nil log is replaced with a no-op.
func NewLoggingOutputDriver(log func(event string, fields map[string]any)) *LoggingOutputDriver {
	if log == nil {
		log = func(string, map[string]any) {}
	}
	return &LoggingOutputDriver{Log: log}
}

func (d *LoggingOutputDriver) StatusLevel(level uint8) {
	d.Log("status_level", map[string]any{"level": level})
}

func (d *LoggingOutputDriver) ContactorOpen() {
	if d.contactorOpen {
		return
	}
	d.contactorOpen = true
	d.Log("contactor_open", nil)
}

func (d *LoggingOutputDriver) ContactorClose() error {
	d.contactorOpen = false
	d.Log("contactor_close", nil)
	return nil
}

func (d *LoggingOutputDriver) AnnunciatorPulse(durationMs uint32) {
	d.Log("annunciator_pulse", map[string]any{"duration_ms": durationMs})
}
