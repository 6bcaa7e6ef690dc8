package stream

import (
	"io"

	"github.com/vitalvas/wswire/frame"
)

const defaultReadBufferSize = 4096

// Reassembler converts the raw byte chunks delivered by a transport into
// complete, in-memory frames. Frames split across reads are carried as
// in-flight state; control frames are accumulated until whole, while data
// frame payloads are emitted chunk by chunk as they arrive. Emitted frames
// are never masked: payloads are unmasked during reassembly.
type Reassembler struct {
	r       io.Reader
	buf     []byte // accumulated bytes not yet parsed
	scratch []byte // transport read buffer
	err     error  // sticky terminal error

	// In-flight frame. cur is non-nil from the moment a header is consumed
	// until the frame's last payload byte has been delivered.
	cur       *frame.Header
	key       frame.MaskingKey
	maskPos   int64
	remaining int64
	first     bool

	// Partial control frame body. Only present while a control frame is
	// split across reads; capacity is fixed from the header's declared
	// length, which ParseHeader has already bounded at 125 bytes.
	ctrlBody []byte
}

// NewReassembler returns a Reassembler reading from r. leftover holds bytes
// the handshake consumed past the end of the HTTP response; they are parsed
// before the first transport read. readBufferSize <= 0 selects the default.
func NewReassembler(r io.Reader, leftover []byte, readBufferSize int) *Reassembler {
	if readBufferSize <= 0 {
		readBufferSize = defaultReadBufferSize
	}
	ra := &Reassembler{
		r:       r,
		scratch: make([]byte, readBufferSize),
	}
	if len(leftover) > 0 {
		ra.buf = append([]byte(nil), leftover...)
	}
	return ra
}

// ReadFrames returns the next complete frames. It never returns an empty
// slice with a nil error: when no full frame is buffered it keeps asking
// the transport for more bytes. EOF is reported as frame.ErrConnectionClosed;
// other transport errors propagate verbatim. After any error the
// Reassembler is unusable and in-flight frame state is discarded.
func (ra *Reassembler) ReadFrames() ([]*frame.Frame, error) {
	for {
		if frames := ra.consume(); len(frames) > 0 {
			return frames, nil
		}
		if ra.err != nil {
			ra.cur = nil
			ra.ctrlBody = nil
			return nil, ra.err
		}
		ra.fill()
	}
}

// fill performs one transport read into the accumulating buffer. A read
// error is stashed so that bytes received alongside it are parsed first.
func (ra *Reassembler) fill() {
	n, err := ra.r.Read(ra.scratch)
	if n > 0 {
		ra.buf = append(ra.buf, ra.scratch[:n]...)
	}
	if err != nil {
		if err == io.EOF {
			err = frame.ErrConnectionClosed
		}
		ra.err = err
	}
}

// consume parses as many frame chunks as the buffered bytes allow and
// converts them into frames. A protocol error is stashed in ra.err so
// frames parsed before the malformed bytes are still delivered.
func (ra *Reassembler) consume() []*frame.Frame {
	if ra.err != nil {
		return nil
	}

	var out []*frame.Frame
	for {
		if ra.cur == nil {
			h, key, n, err := frame.ParseHeader(ra.buf)
			if err != nil {
				ra.err = err
				return out
			}
			if n == 0 {
				return out // incomplete header
			}
			ra.buf = ra.buf[n:]
			ra.cur = &h
			ra.key = key
			ra.maskPos = 0
			ra.remaining = h.PayloadLength
			ra.first = true
			if h.Opcode.IsControl() && h.PayloadLength > 0 {
				ra.ctrlBody = make([]byte, 0, h.PayloadLength)
			}
		}

		if ra.cur.Opcode.IsControl() {
			f, done := ra.consumeControl()
			if !done {
				return out
			}
			out = append(out, f)
			continue
		}

		f, progressed := ra.consumeData()
		if f != nil {
			out = append(out, f)
		}
		if !progressed {
			return out
		}
	}
}

// consumeControl moves available bytes into the control frame body and
// emits the frame once it is whole.
func (ra *Reassembler) consumeControl() (*frame.Frame, bool) {
	avail := int64(len(ra.buf))
	if avail > ra.remaining {
		avail = ra.remaining
	}

	if ra.remaining > avail {
		ra.ctrlBody = append(ra.ctrlBody, ra.buf[:avail]...)
		ra.buf = ra.buf[avail:]
		ra.remaining -= avail
		return nil, false
	}

	body := append(ra.ctrlBody, ra.buf[:avail]...)
	if body == nil {
		body = []byte{}
	}
	ra.buf = ra.buf[avail:]
	if ra.cur.Masked {
		frame.MaskBytes(ra.key, 0, body)
	}

	f := &frame.Frame{Header: *ra.cur, Payload: body}
	f.Header.Masked = false
	ra.cur = nil
	ra.ctrlBody = nil
	ra.remaining = 0
	return f, true
}

// consumeData emits the available payload chunk of the in-flight data frame
// as its own frame. The first chunk keeps the frame's opcode and reserved
// bits; once a non-final chunk has been emitted the in-flight header is
// rewritten to a cleared continuation so later chunks are tagged correctly.
// An empty chunk after the first would be useless and emits nothing.
func (ra *Reassembler) consumeData() (*frame.Frame, bool) {
	avail := int64(len(ra.buf))
	if avail > ra.remaining {
		avail = ra.remaining
	}

	if avail == 0 && ra.remaining > 0 && !ra.first {
		return nil, false
	}

	payload := make([]byte, avail)
	copy(payload, ra.buf[:avail])
	ra.buf = ra.buf[avail:]
	if ra.cur.Masked {
		ra.maskPos = frame.MaskBytes(ra.key, ra.maskPos, payload)
	}

	last := avail == ra.remaining
	f := &frame.Frame{
		Header: frame.Header{
			Final:         ra.cur.Final && last,
			Rsv1:          ra.cur.Rsv1,
			Opcode:        ra.cur.Opcode,
			PayloadLength: avail,
		},
		Payload: payload,
	}

	ra.remaining -= avail
	ra.first = false
	if last {
		ra.cur = nil
	} else {
		ra.cur.Opcode = frame.OpContinuation
		ra.cur.Rsv1 = false
		ra.cur.Rsv2 = false
		ra.cur.Rsv3 = false
	}

	// An emitted empty first chunk of a still-incomplete frame makes no
	// progress; stop until the transport delivers payload bytes.
	return f, avail > 0 || last
}
