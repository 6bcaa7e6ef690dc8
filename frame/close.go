package frame

import "encoding/binary"

// Close codes defined in RFC 6455, section 7.4.1.
const (
	CloseNormalClosure           = 1000
	CloseGoingAway               = 1001
	CloseProtocolError           = 1002
	CloseUnsupportedData         = 1003
	CloseNoStatusReceived        = 1005
	CloseAbnormalClosure         = 1006
	CloseInvalidFramePayloadData = 1007
	ClosePolicyViolation         = 1008
	CloseMessageTooBig           = 1009
	CloseMandatoryExtension      = 1010
	CloseInternalServerErr       = 1011
	CloseServiceRestart          = 1012
	CloseTryAgainLater           = 1013
	CloseTLSHandshake            = 1015
)

// FormatClosePayload formats code and text as a close frame body per
// RFC 6455, section 5.5.1: a 2-byte big-endian status code followed by
// optional UTF-8 reason text. CloseNoStatusReceived produces an empty body.
func FormatClosePayload(code int, text string) []byte {
	if code == CloseNoStatusReceived {
		return []byte{}
	}
	buf := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(buf, uint16(code))
	copy(buf[2:], text)
	return buf
}

// ParseClosePayload extracts the status code and reason text from a close
// frame body. A body shorter than 2 bytes yields CloseNoStatusReceived
// per RFC 6455, section 7.1.5.
func ParseClosePayload(p []byte) (code int, text string) {
	if len(p) < 2 {
		return CloseNoStatusReceived, ""
	}
	return int(binary.BigEndian.Uint16(p[:2])), string(p[2:])
}
