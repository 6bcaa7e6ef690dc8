// Package deflate implements the permessage-deflate WebSocket extension
// (RFC 7692): the negotiation parameter model exchanged during the opening
// handshake, and the streaming Deflater/Inflater pair used by the message
// stream once the extension is agreed.
//
// Negotiation on the client side:
//
//	offer := deflate.Parameters{ClientMaxWindowBits: deflate.WindowBits{Present: true}}
//	// ... send offer.String() in Sec-WebSocket-Extensions ...
//	params, err := deflate.Negotiate(offer, responseHeader)
//	if err != nil {
//	    // handshake failed
//	}
//	// params == nil means the server declined compression
//
// The compressed payload format is a raw DEFLATE stream (RFC 1951, no zlib
// header). Each message ends with a sync flush; the 4-byte marker
// 0x00 0x00 0xff 0xff is stripped by the sender and re-appended by the
// receiver per RFC 7692, section 7.2.
package deflate
