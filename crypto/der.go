package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// ErrMalformedSignature is returned when a DER signature is structurally invalid
var ErrMalformedSignature = errors.New("malformed signature")

const asn1SequenceID = 0x30

// DERToRaw converts a DER SEQUENCE{INTEGER r, INTEGER s} into the fixed-width
// r||s form, each half componentLength bytes wide.
//
// The format of a DER encoded signature is:
//
//	0x30 <length> 0x02 <length of R> <R> 0x02 <length of S> <S>
//
// Lengths may use the short form (< 128) or the long form. A leading 0x00 that keeps
// an integer non-negative is dropped before the value is right-aligned.
func DERToRaw(der []byte, componentLength int) ([]byte, error) {
	if componentLength <= 0 {
		return nil, fmt.Errorf("%w: invalid component length %d", ErrMalformedSignature, componentLength)
	}
	if len(der) == 0 || der[0] != asn1SequenceID {
		return nil, fmt.Errorf("%w: expected SEQUENCE tag 0x30", ErrMalformedSignature)
	}

	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: invalid SEQUENCE length", ErrMalformedSignature)
	}

	raw := make([]byte, 2*componentLength)
	for i, name := range []string{"r", "s"} {
		var value cryptobyte.String
		if !inner.ReadASN1(&value, asn1.INTEGER) {
			return nil, fmt.Errorf("%w: missing INTEGER %s", ErrMalformedSignature, name)
		}
		component := stripLeadingZeros(value)
		if len(value) == 0 {
			return nil, fmt.Errorf("%w: empty INTEGER %s", ErrMalformedSignature, name)
		}
		if len(component) > componentLength {
			return nil, fmt.Errorf("%w: %s is %d bytes, curve allows %d", ErrMalformedSignature, name, len(component), componentLength)
		}
		offset := i*componentLength + componentLength - len(component)
		copy(raw[offset:], component)
	}
	if !inner.Empty() {
		return nil, fmt.Errorf("%w: trailing data inside SEQUENCE", ErrMalformedSignature)
	}

	return raw, nil
}

// RawToDER converts a fixed-width r||s signature into DER. Each half is reduced to
// its minimal big-endian form and gets exactly one 0x00 pad byte when its top bit
// is set.
func RawToDER(raw []byte, componentLength int) ([]byte, error) {
	if componentLength <= 0 || len(raw) != 2*componentLength {
		return nil, fmt.Errorf("%w: raw signature is %d bytes, expected %d", ErrMalformedSignature, len(raw), 2*componentLength)
	}

	b := cryptobyte.NewBuilder(make([]byte, 0, 2*componentLength+8))
	b.AddASN1(asn1.SEQUENCE, func(seq *cryptobyte.Builder) {
		seq.AddASN1(asn1.INTEGER, func(i *cryptobyte.Builder) {
			i.AddBytes(minimalInteger(raw[:componentLength]))
		})
		seq.AddASN1(asn1.INTEGER, func(i *cryptobyte.Builder) {
			i.AddBytes(minimalInteger(raw[componentLength:]))
		})
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode DER signature: %w", err)
	}
	return der, nil
}

func stripLeadingZeros(b []byte) []byte {
	for len(b) > 0 && b[0] == 0x00 {
		b = b[1:]
	}
	return b
}

func minimalInteger(component []byte) []byte {
	v := stripLeadingZeros(component)
	if len(v) == 0 {
		return []byte{0x00}
	}
	if v[0]&0x80 != 0 {
		out := make([]byte, len(v)+1)
		copy(out[1:], v)
		return out
	}
	return v
}
