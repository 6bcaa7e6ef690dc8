// Package stream turns the byte stream of an established WebSocket
// connection into frames and back, on the client side of the connection.
//
// The Reassembler consumes raw byte chunks from the transport and produces
// complete, unmasked frames, handling frames split across reads and control
// frames arriving in the middle of a fragmented message. The Stream wraps a
// Reassembler and adds permessage-deflate (RFC 7692): incoming compressed
// messages are inflated back into plaintext frames, outgoing messages are
// deflated according to a pluggable Predictor, and every outgoing frame is
// masked as RFC 6455 requires of clients.
//
// A Stream is built from whatever the opening handshake produced:
//
//	params, err := deflate.Negotiate(offer, resp.Header.Get("Sec-WebSocket-Extensions"))
//	if err != nil {
//	    // handshake failed
//	}
//	s, err := stream.New(conn, &stream.Options{
//	    Extension: params,
//	    Leftover:  leftover,
//	})
//
// Reads and writes are independent of each other but each must be issued
// one at a time; a second concurrent ReadFrames or WriteFrames call fails
// with ErrConcurrentRead or ErrConcurrentWrite. Timeouts and cancellation
// belong to the connection's owner, which may Close the stream at any time.
package stream
