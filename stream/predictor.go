package stream

import "github.com/vitalvas/wswire/frame"

// Strategy is the compression decision for one outgoing message.
type Strategy int

const (
	// Deflate compresses every frame of the message.
	Deflate Strategy = iota

	// DoNotDeflate sends the message's frames unchanged.
	DoNotDeflate

	// TryDeflate compresses speculatively: the original frames are held
	// back while the message is deflated, and whichever form is smaller
	// goes on the wire.
	TryDeflate
)

// Predictor decides whether outgoing messages are worth compressing.
// Predict is consulted with the first frame of each message; the two Record
// callbacks see every input data frame and every written data frame in
// order, giving the predictor the history to learn payload compressibility.
//
// TryDeflate holds the whole message in memory until it ends, and is
// honored only when context takeover is disabled in the client-to-server
// direction, since replaying the originals must not leak compression state
// across messages. No maximum message size is enforced here; bounding
// message size is the caller's responsibility.
type Predictor interface {
	Predict(f *frame.Frame) Strategy
	RecordInputDataFrame(f *frame.Frame)
	RecordWrittenDataFrame(f *frame.Frame)
}

// deflateAlways is the default predictor: every message is compressed.
type deflateAlways struct{}

func (deflateAlways) Predict(*frame.Frame) Strategy       { return Deflate }
func (deflateAlways) RecordInputDataFrame(*frame.Frame)   {}
func (deflateAlways) RecordWrittenDataFrame(*frame.Frame) {}
