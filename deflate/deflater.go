package deflate

import (
	"bytes"
	"compress/flate"
	"errors"
)

// Compression level constants for DEFLATE (RFC 1951).
const (
	MinCompressionLevel     = -2 // flate.HuffmanOnly
	MaxCompressionLevel     = 9
	DefaultCompressionLevel = 1
)

// ErrInvalidCompressionLevel is returned by NewDeflater for levels outside
// the flate package range.
var ErrInvalidCompressionLevel = errors.New("wswire: invalid compression level")

// deflateTail is the 4-byte sync flush marker 0x00 0x00 0xff 0xff that
// terminates each message boundary. The sender strips it and the receiver
// re-appends it per RFC 7692, section 7.2.
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff}

// Deflater compresses outgoing message payloads into a raw DEFLATE stream.
// Payload bytes are fed in with Push and the message is terminated with
// Finish; compressed output accumulates between calls and is drained with
// Take. A Deflater belongs to a single connection and is not safe for
// concurrent use.
type Deflater struct {
	fw                *flate.Writer
	buf               bytes.Buffer
	msgOut            int // compressed bytes produced for the current message
	noContextTakeover bool
}

// deflaterSink counts compressed output per message on the way into the
// buffer, so Finish can tell an empty message from an already-drained one.
type deflaterSink struct {
	d *Deflater
}

func (s deflaterSink) Write(p []byte) (int, error) {
	s.d.msgOut += len(p)
	return s.d.buf.Write(p)
}

// NewDeflater returns a Deflater with the given flate compression level.
// With noContextTakeover the compression window is reset at every message
// boundary, trading ratio for memory.
func NewDeflater(level int, noContextTakeover bool) (*Deflater, error) {
	if level < MinCompressionLevel || level > MaxCompressionLevel {
		return nil, ErrInvalidCompressionLevel
	}

	d := &Deflater{noContextTakeover: noContextTakeover}
	fw, err := flate.NewWriter(deflaterSink{d}, level)
	if err != nil {
		return nil, err
	}
	d.fw = fw
	return d, nil
}

// Push feeds payload bytes of the current message into the compressor.
func (d *Deflater) Push(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	_, err := d.fw.Write(p)
	return err
}

// Finish terminates the current message: it sync-flushes the compressor and
// strips the trailing 0x00 0x00 0xff 0xff per RFC 7692, section 7.2.1. A
// message that produced no compressed output is encoded as the single byte
// 0x00 so the receiver still sees a well-formed block. Without context
// takeover the compression window is reset for the next message.
func (d *Deflater) Finish() error {
	if err := d.fw.Flush(); err != nil {
		return err
	}

	b := d.buf.Bytes()
	if len(b) >= len(deflateTail) && bytes.Equal(b[len(b)-len(deflateTail):], deflateTail) {
		d.buf.Truncate(len(b) - len(deflateTail))
		d.msgOut -= len(deflateTail)
	}
	if d.msgOut == 0 {
		d.buf.WriteByte(0x00)
	}
	d.msgOut = 0

	if d.noContextTakeover {
		d.fw.Reset(deflaterSink{d})
	}
	return nil
}

// Len returns the number of buffered compressed bytes not yet taken.
func (d *Deflater) Len() int {
	return d.buf.Len()
}

// Take removes and returns up to max buffered output bytes; max <= 0 takes
// everything. The returned slice is owned by the caller.
func (d *Deflater) Take(max int) []byte {
	n := d.buf.Len()
	if max > 0 && max < n {
		n = max
	}
	out := make([]byte, n)
	copy(out, d.buf.Next(n))
	return out
}

// Reset discards buffered output and the compression window. Used when a
// speculatively compressed message is abandoned in favor of the originals.
func (d *Deflater) Reset() {
	d.buf.Reset()
	d.msgOut = 0
	d.fw.Reset(deflaterSink{d})
}

// Close releases the underlying flate writer.
func (d *Deflater) Close() error {
	return d.fw.Close()
}
