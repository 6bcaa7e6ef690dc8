package stream

import (
	"errors"
	"io"
	"sync"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vitalvas/wswire/deflate"
	"github.com/vitalvas/wswire/frame"
)

const (
	// chunkSize bounds the payload of re-emitted inflated frames and is the
	// flush threshold for deflated output.
	chunkSize = 4096

	defaultWriteBufferSize = 4096
)

// Errors returned for caller-side contract violations.
var (
	ErrConcurrentRead  = errors.New("wswire: concurrent ReadFrames call")
	ErrConcurrentWrite = errors.New("wswire: concurrent WriteFrames call")

	// ErrBadMessageStart is returned when a message opens with a
	// continuation frame.
	ErrBadMessageStart = errors.New("wswire: message must start with a text or binary frame")
)

// Options configures a Stream. The zero value is usable: no compression,
// default buffer sizes, crypto-random masking keys and no logging.
type Options struct {
	// ReadBufferSize and WriteBufferSize specify I/O buffer sizes in bytes.
	ReadBufferSize  int
	WriteBufferSize int

	// CompressionLevel is the flate level used for outgoing messages;
	// 0 selects the default level.
	CompressionLevel int

	// Extension holds the negotiated permessage-deflate parameters, as
	// returned by deflate.Negotiate. nil leaves compression disabled.
	Extension *deflate.Parameters

	// Predictor decides per message whether to compress. nil compresses
	// every message.
	Predictor Predictor

	// KeySource supplies masking key bytes; nil uses crypto/rand. Tests
	// inject a deterministic reader here.
	KeySource io.Reader

	// Logger receives debug and warning events; nil disables logging.
	Logger *zap.Logger

	// Leftover holds bytes the handshake read past the end of the HTTP
	// response; they are parsed before the first transport read.
	Leftover []byte

	// Subprotocol is the subprotocol the handshake agreed on, if any.
	Subprotocol string
}

type readState int

const (
	notReading readState = iota
	readingCompressedMessage
	readingUncompressedMessage
)

type writeState int

const (
	notWriting writeState = iota
	writingCompressedMessage
	writingUncompressedMessage
	writingPossiblyCompressedMessage
)

// Stream is the wire engine for one established client connection. Inbound
// bytes flow transport → Reassembler → inflater → caller; outbound frames
// flow caller → deflater → masking → transport.
//
// A Stream supports one reader and one writer at a time; reads never run
// concurrently with reads, nor writes with writes. Each Stream owns its
// compression state and buffers, nothing is shared between streams.
type Stream struct {
	rwc         io.ReadWriteCloser
	ra          *Reassembler
	ext         *deflate.Parameters
	subprotocol string
	logger      *zap.Logger

	deflater  *deflate.Deflater
	inflater  *deflate.Inflater
	predictor Predictor
	keySource io.Reader

	readMu     sync.Mutex
	readState  readState
	readOpcode frame.Opcode

	writeMu      sync.Mutex
	writeState   writeState
	writeOpcode  frame.Opcode
	wroteFirst   bool
	pending      *queue.Queue // original frames held back during TryDeflate
	pendingBytes int64
	writeBuf     []byte
}

// New returns a Stream over rwc, which carries the connection's bytes from
// the point where the opening handshake left off.
func New(rwc io.ReadWriteCloser, opts *Options) (*Stream, error) {
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("conn_id", uuid.NewString()))

	writeBufferSize := opts.WriteBufferSize
	if writeBufferSize <= 0 {
		writeBufferSize = defaultWriteBufferSize
	}

	s := &Stream{
		rwc:         rwc,
		ra:          NewReassembler(rwc, opts.Leftover, opts.ReadBufferSize),
		ext:         opts.Extension,
		subprotocol: opts.Subprotocol,
		logger:      logger,
		predictor:   opts.Predictor,
		keySource:   opts.KeySource,
		pending:     queue.New(),
		writeBuf:    make([]byte, writeBufferSize+frame.MaxHeaderSize),
	}
	if s.predictor == nil {
		s.predictor = deflateAlways{}
	}

	if opts.Extension != nil {
		level := opts.CompressionLevel
		if level == 0 {
			level = deflate.DefaultCompressionLevel
		}
		deflater, err := deflate.NewDeflater(level, opts.Extension.ClientNoContextTakeover)
		if err != nil {
			return nil, err
		}
		s.deflater = deflater
		s.inflater = deflate.NewInflater(opts.Extension.ServerNoContextTakeover)

		logger.Debug("permessage-deflate enabled",
			zap.String("params", opts.Extension.String()),
			zap.Int("level", level),
		)
	}

	return s, nil
}

// Extension returns the negotiated permessage-deflate parameters, or nil
// when compression is off.
func (s *Stream) Extension() *deflate.Parameters {
	return s.ext
}

// Subprotocol returns the negotiated subprotocol for the connection.
func (s *Stream) Subprotocol() string {
	return s.subprotocol
}

// Close releases compression state and closes the transport. Any buffers
// still in flight are dropped without further I/O.
func (s *Stream) Close() error {
	var err error
	if s.deflater != nil {
		err = multierr.Append(err, s.deflater.Close())
	}
	if s.inflater != nil {
		err = multierr.Append(err, s.inflater.Close())
	}
	return multierr.Append(err, s.rwc.Close())
}

// ReadFrames returns the next frames for the caller. Compressed messages
// come back inflated, re-chunked into data frames of at most 4 KiB with the
// compression bit cleared; uncompressed messages and control frames pass
// through unchanged. A successful call always carries at least one frame:
// while a compressed message is still accumulating, ReadFrames keeps
// requesting chunks from the transport.
func (s *Stream) ReadFrames() ([]*frame.Frame, error) {
	if !s.readMu.TryLock() {
		return nil, ErrConcurrentRead
	}
	defer s.readMu.Unlock()

	for {
		frames, err := s.ra.ReadFrames()
		if err != nil {
			return nil, err
		}

		out := make([]*frame.Frame, 0, len(frames))
		for _, f := range frames {
			inflated, err := s.inflateFrame(f)
			if err != nil {
				s.logger.Warn("read failed", zap.Error(err))
				return nil, err
			}
			out = append(out, inflated...)
		}
		if len(out) > 0 {
			return out, nil
		}
	}
}

// inflateFrame runs one reassembled frame through the reading state
// machine. Control frames bypass it entirely, even mid-message.
func (s *Stream) inflateFrame(f *frame.Frame) ([]*frame.Frame, error) {
	if f.Header.Opcode.IsControl() {
		return []*frame.Frame{f}, nil
	}

	if s.readState == notReading {
		if f.Header.Rsv1 {
			if s.inflater == nil {
				return nil, frame.ErrReservedBits
			}
			s.readState = readingCompressedMessage
		} else {
			s.readState = readingUncompressedMessage
		}
		s.readOpcode = f.Header.Opcode
	} else if f.Header.Rsv1 {
		return nil, frame.ProtocolError("compression bit set on non-first fragment")
	}

	if s.readState == readingUncompressedMessage {
		if f.Header.Final {
			s.readState = notReading
		}
		return []*frame.Frame{f}, nil
	}

	s.inflater.Push(f.Payload)
	if !f.Header.Final {
		return nil, nil // still buffering the compressed message
	}
	if err := s.inflater.Finish(); err != nil {
		return nil, err
	}
	s.readState = notReading

	var out []*frame.Frame
	op := s.readOpcode
	for {
		chunk := s.inflater.Take(chunkSize)
		final := s.inflater.Len() == 0
		out = append(out, &frame.Frame{
			Header: frame.Header{
				Final:         final,
				Opcode:        op,
				PayloadLength: int64(len(chunk)),
			},
			Payload: chunk,
		})
		if final {
			return out, nil
		}
		op = frame.OpContinuation
	}
}

// WriteFrames sends the given frames. Data frames flow through the writing
// state machine and may be deflated, held back for a speculative
// compression, or passed through; control frames go straight to the wire
// and may overtake data frames buffered for a TryDeflate message. Every
// outgoing frame is masked.
func (s *Stream) WriteFrames(frames []*frame.Frame) error {
	if !s.writeMu.TryLock() {
		return ErrConcurrentWrite
	}
	defer s.writeMu.Unlock()

	for _, f := range frames {
		if err := s.writeFrame(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) writeFrame(f *frame.Frame) error {
	if f.Header.Opcode.IsControl() {
		return s.sendFrame(f.Header, f.Payload)
	}

	if s.deflater == nil {
		return s.sendDataFrame(f)
	}

	if s.writeState == notWriting {
		if f.Header.Opcode == frame.OpContinuation {
			return ErrBadMessageStart
		}
		s.writeOpcode = f.Header.Opcode
		s.wroteFirst = false
		switch s.predictor.Predict(f) {
		case DoNotDeflate:
			s.writeState = writingUncompressedMessage
		case TryDeflate:
			// Replaying buffered originals must not leak compression
			// state, so speculation needs a per-message window.
			if s.ext.ClientNoContextTakeover {
				s.writeState = writingPossiblyCompressedMessage
			} else {
				s.writeState = writingCompressedMessage
			}
		default:
			s.writeState = writingCompressedMessage
		}
	}

	s.predictor.RecordInputDataFrame(f)

	switch s.writeState {
	case writingUncompressedMessage:
		if f.Header.Final {
			s.writeState = notWriting
		}
		return s.sendDataFrame(f)

	case writingCompressedMessage:
		if err := s.deflater.Push(f.Payload); err != nil {
			return err
		}
		if f.Header.Final {
			if err := s.deflater.Finish(); err != nil {
				return err
			}
			return s.flushDeflated(true)
		}
		if s.deflater.Len() >= chunkSize {
			return s.flushDeflated(false)
		}
		return nil

	default: // writingPossiblyCompressedMessage
		return s.trySpeculative(f)
	}
}

// flushDeflated emits the deflater's buffered output as one wire frame.
// The message's first wire frame carries its opcode and the compression
// bit; the rest are continuations.
func (s *Stream) flushDeflated(final bool) error {
	h := frame.Header{
		Final:  final,
		Opcode: frame.OpContinuation,
	}
	if !s.wroteFirst {
		h.Opcode = s.writeOpcode
		h.Rsv1 = true
		s.wroteFirst = true
	}
	if final {
		s.writeState = notWriting
	}

	payload := s.deflater.Take(0)
	h.PayloadLength = int64(len(payload))
	if err := s.sendFrame(h, payload); err != nil {
		return err
	}
	s.predictor.RecordWrittenDataFrame(&frame.Frame{Header: h, Payload: payload})
	return nil
}

// trySpeculative buffers the message's original frames while deflating
// them; at the message end the smaller encoding wins.
func (s *Stream) trySpeculative(f *frame.Frame) error {
	s.pending.Add(f)
	s.pendingBytes += int64(len(f.Payload))
	if err := s.deflater.Push(f.Payload); err != nil {
		return err
	}
	if !f.Header.Final {
		return nil
	}

	if err := s.deflater.Finish(); err != nil {
		return err
	}
	s.writeState = notWriting

	if int64(s.deflater.Len()) < s.pendingBytes {
		s.drainPending(false)
		h := frame.Header{
			Final:  true,
			Rsv1:   true,
			Opcode: s.writeOpcode,
		}
		payload := s.deflater.Take(0)
		h.PayloadLength = int64(len(payload))
		s.logger.Debug("speculative compression won",
			zap.Int64("original_bytes", s.pendingBytes),
			zap.Int64("compressed_bytes", h.PayloadLength),
		)
		s.pendingBytes = 0
		if err := s.sendFrame(h, payload); err != nil {
			return err
		}
		s.predictor.RecordWrittenDataFrame(&frame.Frame{Header: h, Payload: payload})
		return nil
	}

	// The compressed form is no smaller; send the originals verbatim and
	// drop the speculative output along with the compression window.
	s.deflater.Reset()
	s.pendingBytes = 0
	return s.drainPending(true)
}

// drainPending empties the TryDeflate frame buffer, sending the frames
// when send is set and discarding them otherwise.
func (s *Stream) drainPending(send bool) error {
	for s.pending.Length() > 0 {
		f := s.pending.Remove().(*frame.Frame)
		if !send {
			continue
		}
		if err := s.sendDataFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// sendDataFrame passes a data frame through unmodified and records it with
// the predictor.
func (s *Stream) sendDataFrame(f *frame.Frame) error {
	if err := s.sendFrame(f.Header, f.Payload); err != nil {
		return err
	}
	s.predictor.RecordWrittenDataFrame(f)
	return nil
}

// sendFrame masks and writes one frame. The caller's payload is never
// modified: masking happens on a copy, inside the write buffer when the
// frame fits it.
func (s *Stream) sendFrame(h frame.Header, payload []byte) error {
	key, err := frame.NewMaskingKey(s.keySource)
	if err != nil {
		return err
	}

	h.Masked = true
	h.PayloadLength = int64(len(payload))

	n, err := frame.WriteHeader(s.writeBuf, h, &key)
	if err != nil {
		return err
	}

	// Single write when header and payload fit the write buffer, same as
	// splitting large payloads into a separate write.
	if n+len(payload) <= len(s.writeBuf) {
		copy(s.writeBuf[n:], payload)
		frame.MaskBytes(key, 0, s.writeBuf[n:n+len(payload)])
		_, err = s.rwc.Write(s.writeBuf[:n+len(payload)])
		return err
	}

	masked := make([]byte, len(payload))
	copy(masked, payload)
	frame.MaskBytes(key, 0, masked)

	if _, err := s.rwc.Write(s.writeBuf[:n]); err != nil {
		return err
	}
	_, err = s.rwc.Write(masked)
	return err
}
