// File: internal/codec/signature.go
package codec

import (
	"errors"
	"fmt"
)

// Codec boundary errors. Callers switch on these; they are never wrapped
// away by the functions in this package.
var (
	ErrInvalidLength          = errors.New("raw signature must be exactly 64 bytes")
	ErrInvalidComponentLength = errors.New("signature component length outside 32..33 bytes")
	ErrMalformedTransaction   = errors.New("malformed transaction")
)

const (
	derSequenceTag = 0x30
	derIntegerTag  = 0x02
)

// ToTransportSignature converts a wallet-native raw R‖S signature (32 bytes
// each, big-endian) into the two-integer DER SEQUENCE encoding required by
// consensus-layer verification. DER integers are signed, so a component whose
// most-significant bit is set gets a zero byte prepended.
func ToTransportSignature(raw []byte) ([]byte, error) {
	if len(raw) != 64 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, len(raw))
	}

	r := padComponent(raw[:32])
	s := padComponent(raw[32:])

	if len(r) < 32 || len(r) > 33 || len(s) < 32 || len(s) > 33 {
		return nil, ErrInvalidComponentLength
	}

	body := 2 + len(r) + 2 + len(s)
	out := make([]byte, 0, 2+body)
	out = append(out, derSequenceTag, byte(body))
	out = append(out, derIntegerTag, byte(len(r)))
	out = append(out, r...)
	out = append(out, derIntegerTag, byte(len(s)))
	out = append(out, s...)

	return out, nil
}

// padComponent prepends a zero byte when the high bit is set, so the DER
// integer is not read as negative.
func padComponent(b []byte) []byte {
	if b[0]&0x80 != 0 {
		padded := make([]byte, 0, len(b)+1)
		padded = append(padded, 0x00)
		return append(padded, b...)
	}
	return b
}
