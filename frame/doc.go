// Package frame implements the WebSocket frame wire format defined in
// RFC 6455, section 5.2.
//
// The package provides the stateless pieces of the protocol: encoding and
// decoding of frame headers, payload masking, and the Frame/Header types
// shared by the reassembly and compression layers. It performs no I/O.
//
// Encoding a header:
//
//	h := frame.Header{Final: true, Opcode: frame.OpText, PayloadLength: 5}
//	buf := make([]byte, frame.HeaderSize(h))
//	n, err := frame.WriteHeader(buf, h, nil)
//
// Masking is a symmetric XOR cipher (RFC 6455, section 5.3); the same
// function masks on write and unmasks on read:
//
//	key, _ := frame.NewMaskingKey(nil)
//	frame.MaskBytes(key, 0, payload) // mask
//	frame.MaskBytes(key, 0, payload) // unmask
package frame
