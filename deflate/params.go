package deflate

import (
	"strconv"
	"strings"

	"github.com/gobwas/httphead"
)

// ExtensionName is the registered name of the permessage-deflate extension
// (RFC 7692, section 5.2).
const ExtensionName = "permessage-deflate"

// Extension parameter names per RFC 7692, section 7.1.
const (
	paramServerNoContextTakeover = "server_no_context_takeover"
	paramClientNoContextTakeover = "client_no_context_takeover"
	paramServerMaxWindowBits     = "server_max_window_bits"
	paramClientMaxWindowBits     = "client_max_window_bits"
)

// LZ77 window size bounds per RFC 7692, section 5.2.
const (
	MinWindowBits = 8
	MaxWindowBits = 15
)

// ParameterError reports a malformed or unacceptable extension parameter
// list. A negotiation error aborts the handshake; it is not recoverable.
type ParameterError string

func (e ParameterError) Error() string {
	return "wswire: permessage-deflate: " + string(e)
}

// Negotiation errors.
var (
	ErrDuplicateParameter = ParameterError("duplicate parameter")
	ErrUnknownParameter   = ParameterError("unknown parameter")
	ErrUnexpectedValue    = ParameterError("parameter must not carry a value")
	ErrMissingWindowBits  = ParameterError("server_max_window_bits requires a value")
	ErrInvalidWindowBits  = ParameterError("max_window_bits value must be a decimal integer in [8,15]")
	ErrMalformedHeader    = ParameterError("malformed Sec-WebSocket-Extensions header")
	ErrDuplicateExtension = ParameterError("extension negotiated more than once")
	ErrInvalidResponse    = ParameterError("response parameters invalid as a counter-offer")
	ErrIncompatibleOffer  = ParameterError("response parameters incompatible with the offer")
)

// WindowBits models a max_window_bits parameter. Present and HasValue are
// tracked separately: client_max_window_bits may legally appear without a
// value, signalling that the client can accept any window size the server
// picks, which is different from the parameter being absent.
type WindowBits struct {
	Present  bool
	HasValue bool
	Bits     int
}

// Param is one generic extension parameter as produced by a header parser.
// HasValue distinguishes a bare parameter name from one carrying a value.
type Param struct {
	Name     string
	Value    string
	HasValue bool
}

// Parameters holds a permessage-deflate parameter set, either the local
// offer being built or the peer's parsed response. The zero value is the
// RFC 7692 default: context taken over in both directions, window bits
// unspecified. A Parameters is built fresh per handshake attempt and
// discarded afterwards.
type Parameters struct {
	ServerNoContextTakeover bool
	ClientNoContextTakeover bool
	ServerMaxWindowBits     WindowBits
	ClientMaxWindowBits     WindowBits
}

// ParseParams interprets a generic extension parameter list as
// permessage-deflate parameters per RFC 7692, section 7.1. It rejects
// duplicated parameters, values on the no_context_takeover parameters,
// malformed or out-of-range window bits, and unrecognized names.
func ParseParams(params []Param) (Parameters, error) {
	var p Parameters

	seen := make(map[string]bool, len(params))
	for _, param := range params {
		if seen[param.Name] {
			return Parameters{}, ErrDuplicateParameter
		}
		seen[param.Name] = true

		switch param.Name {
		case paramServerNoContextTakeover:
			if param.HasValue {
				return Parameters{}, ErrUnexpectedValue
			}
			p.ServerNoContextTakeover = true

		case paramClientNoContextTakeover:
			if param.HasValue {
				return Parameters{}, ErrUnexpectedValue
			}
			p.ClientNoContextTakeover = true

		case paramServerMaxWindowBits:
			// The server form always requires a value (RFC 7692, section 7.1.2.1).
			if !param.HasValue {
				return Parameters{}, ErrMissingWindowBits
			}
			bits, err := parseWindowBits(param.Value)
			if err != nil {
				return Parameters{}, err
			}
			p.ServerMaxWindowBits = WindowBits{Present: true, HasValue: true, Bits: bits}

		case paramClientMaxWindowBits:
			if !param.HasValue {
				p.ClientMaxWindowBits = WindowBits{Present: true}
				continue
			}
			bits, err := parseWindowBits(param.Value)
			if err != nil {
				return Parameters{}, err
			}
			p.ClientMaxWindowBits = WindowBits{Present: true, HasValue: true, Bits: bits}

		default:
			return Parameters{}, ErrUnknownParameter
		}
	}

	return p, nil
}

// parseWindowBits parses a max_window_bits value: a bare decimal integer
// with no leading zero, in [8,15].
func parseWindowBits(s string) (int, error) {
	if s == "" || s[0] == '0' {
		return 0, ErrInvalidWindowBits
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrInvalidWindowBits
		}
	}
	bits, err := strconv.Atoi(s)
	if err != nil || bits < MinWindowBits || bits > MaxWindowBits {
		return 0, ErrInvalidWindowBits
	}
	return bits, nil
}

// ParseExtension scans a Sec-WebSocket-Extensions header value and returns
// the parameters of the permessage-deflate entry, if any. found reports
// whether the extension appeared at all; a second permessage-deflate entry
// is rejected with ErrDuplicateExtension.
func ParseExtension(header string) (p Parameters, found bool, err error) {
	if header == "" {
		return Parameters{}, false, nil
	}

	var (
		params    []Param
		lastIndex = -1
		count     int
	)

	ok := httphead.ScanOptions([]byte(header), func(index int, option, attribute, value []byte) httphead.Control {
		if string(option) != ExtensionName {
			return httphead.ControlSkip
		}
		if index != lastIndex {
			lastIndex = index
			count++
			if count > 1 {
				err = ErrDuplicateExtension
				return httphead.ControlBreak
			}
		}
		if attribute != nil {
			params = append(params, Param{
				Name:     string(attribute),
				Value:    string(value),
				HasValue: value != nil,
			})
		}
		return httphead.ControlContinue
	})
	if err != nil {
		return Parameters{}, false, err
	}
	if !ok {
		return Parameters{}, false, ErrMalformedHeader
	}
	if count == 0 {
		return Parameters{}, false, nil
	}

	p, err = ParseParams(params)
	if err != nil {
		return Parameters{}, false, err
	}
	return p, true, nil
}

// IsValidAsOffer reports whether p may be sent as the client's extension
// negotiation offer. Any parameter set that parses is a valid offer;
// client_max_window_bits may be left without a value to mark the window
// size negotiable.
func (p Parameters) IsValidAsOffer() bool {
	return true
}

// IsValidAsResponse reports whether p is acceptable as a server
// counter-offer. A response must resolve client_max_window_bits to a
// concrete value; an offer may leave it open, a counter-offer may not.
func (p Parameters) IsValidAsResponse() bool {
	if p.ClientMaxWindowBits.Present && !p.ClientMaxWindowBits.HasValue {
		return false
	}
	return true
}

// IsCompatibleWith reports whether response is an acceptable counter-offer
// for the offer p:
//
//   - the response must not claim server context takeover when the offer
//     demanded none;
//   - the response's server_max_window_bits, if present, must not exceed
//     the offer's;
//   - the response must not constrain client_max_window_bits when the
//     offer never mentioned it.
func (p Parameters) IsCompatibleWith(response Parameters) bool {
	if p.ServerNoContextTakeover && !response.ServerNoContextTakeover {
		return false
	}
	if response.ServerMaxWindowBits.Present &&
		p.ServerMaxWindowBits.HasValue &&
		response.ServerMaxWindowBits.Bits > p.ServerMaxWindowBits.Bits {
		return false
	}
	if response.ClientMaxWindowBits.Present && !p.ClientMaxWindowBits.Present {
		return false
	}
	return true
}

// String serializes p as a Sec-WebSocket-Extensions token, omitting every
// parameter that equals its RFC 7692 default.
func (p Parameters) String() string {
	var b strings.Builder
	b.WriteString(ExtensionName)

	if p.ServerNoContextTakeover {
		b.WriteString("; " + paramServerNoContextTakeover)
	}
	if p.ClientNoContextTakeover {
		b.WriteString("; " + paramClientNoContextTakeover)
	}
	if p.ServerMaxWindowBits.Present {
		b.WriteString("; " + paramServerMaxWindowBits)
		if p.ServerMaxWindowBits.HasValue {
			b.WriteString("=" + strconv.Itoa(p.ServerMaxWindowBits.Bits))
		}
	}
	if p.ClientMaxWindowBits.Present {
		b.WriteString("; " + paramClientMaxWindowBits)
		if p.ClientMaxWindowBits.HasValue {
			b.WriteString("=" + strconv.Itoa(p.ClientMaxWindowBits.Bits))
		}
	}

	return b.String()
}

// Negotiate parses the server's Sec-WebSocket-Extensions response header
// and checks it against the client's offer. It returns nil when the server
// declined the extension, the agreed parameters when it accepted, and an
// error when the response is malformed, invalid as a counter-offer, or
// incompatible with the offer.
func Negotiate(offer Parameters, responseHeader string) (*Parameters, error) {
	response, found, err := ParseExtension(responseHeader)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if !response.IsValidAsResponse() {
		return nil, ErrInvalidResponse
	}
	if !offer.IsCompatibleWith(response) {
		return nil, ErrIncompatibleOffer
	}
	return &response, nil
}
