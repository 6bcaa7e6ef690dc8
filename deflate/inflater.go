package deflate

import (
	"bytes"
	"compress/flate"
	"io"

	"github.com/vitalvas/wswire/frame"
)

// maxWindowSize is the largest LZ77 window RFC 7692 allows (2^15 bytes).
const maxWindowSize = 1 << MaxWindowBits

// finalBlock is an empty stored block with BFINAL set. Appending it after
// the sync flush marker lets the flate reader terminate cleanly at the
// message boundary instead of hitting an unexpected EOF.
var finalBlock = []byte{0x01, 0x00, 0x00, 0xff, 0xff}

// Inflater decompresses incoming message payloads. Compressed frame
// payloads are fed in with Push; Finish is called on the message's final
// frame and makes the plaintext available through Take. With context
// takeover the LZ77 window is carried across messages, so messages may
// back-reference earlier plaintext.
type Inflater struct {
	fr                io.ReadCloser
	in                bytes.Buffer
	out               bytes.Buffer
	dict              []byte
	noContextTakeover bool
}

// NewInflater returns an Inflater. noContextTakeover mirrors the negotiated
// parameter for the incoming direction: when set, every message is
// decompressed independently of prior history.
func NewInflater(noContextTakeover bool) *Inflater {
	return &Inflater{noContextTakeover: noContextTakeover}
}

// Push appends a compressed frame payload to the in-progress message.
func (inf *Inflater) Push(p []byte) {
	inf.in.Write(p)
}

// Finish decompresses the buffered message. The 0x00 0x00 0xff 0xff tail
// stripped by the sender is re-appended first (RFC 7692, section 7.2.2).
// Malformed compressed data is a protocol error: the connection cannot be
// resynchronized after it.
//
// A sync-flushed message boundary is byte aligned and carries no block
// state, so decoding each message as a fresh stream primed with the last
// 32 KiB of plaintext is equivalent to decoding one continuous stream.
func (inf *Inflater) Finish() error {
	inf.in.Write(deflateTail)
	inf.in.Write(finalBlock)

	if inf.fr == nil {
		inf.fr = flate.NewReaderDict(&inf.in, inf.dict)
	} else {
		// flate.NewReader always returns a Resetter.
		if err := inf.fr.(flate.Resetter).Reset(&inf.in, inf.dict); err != nil {
			return frame.ProtocolError("invalid compressed message: " + err.Error())
		}
	}

	before := inf.out.Len()
	if _, err := inf.out.ReadFrom(inf.fr); err != nil {
		inf.in.Reset()
		return frame.ProtocolError("invalid compressed message: " + err.Error())
	}
	inf.in.Reset()

	if inf.noContextTakeover {
		inf.dict = nil
		return nil
	}
	inf.dict = appendWindow(inf.dict, inf.out.Bytes()[before:])
	return nil
}

// Len returns the number of inflated bytes not yet taken.
func (inf *Inflater) Len() int {
	return inf.out.Len()
}

// Take removes and returns up to max inflated bytes; max <= 0 takes
// everything. The returned slice is owned by the caller.
func (inf *Inflater) Take(max int) []byte {
	n := inf.out.Len()
	if max > 0 && max < n {
		n = max
	}
	out := make([]byte, n)
	copy(out, inf.out.Next(n))
	return out
}

// Close releases the underlying flate reader.
func (inf *Inflater) Close() error {
	if inf.fr == nil {
		return nil
	}
	return inf.fr.Close()
}

// appendWindow appends p to the dictionary and trims it to the maximum
// window size, copying so the backing array stays bounded.
func appendWindow(dict, p []byte) []byte {
	dict = append(dict, p...)
	if len(dict) <= maxWindowSize {
		return dict
	}
	trimmed := make([]byte, maxWindowSize)
	copy(trimmed, dict[len(dict)-maxWindowSize:])
	return trimmed
}
