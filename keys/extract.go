package keys

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// ErrUnrecognizedKeyFormat is returned when key bytes match no known container
var ErrUnrecognizedKeyFormat = errors.New("unrecognized key format")

const (
	// p256SPKILength is the size of a DER SubjectPublicKeyInfo around an
	// uncompressed P-256 point
	p256SPKILength = 91

	// certificateThreshold is the size above which a DER buffer is tried as an
	// X.509 certificate before it is tried as a bare SPKI
	certificateThreshold = 100
)

// p256SPKIHeader is everything in a P-256 SPKI that precedes the point:
// SEQUENCE { SEQUENCE { id-ecPublicKey, prime256v1 }, BIT STRING 0x00 ...
var p256SPKIHeader, _ = hex.DecodeString("3059301306072a8648ce3d020106082a8648ce3d030107034200")

// ExtractECPublicKeyPoint normalizes a public key into a raw EC point.
//
// Accepted inputs:
//   - a raw point (0x04, 0x02 or 0x03 prefix), returned unchanged
//   - a DER SubjectPublicKeyInfo
//   - a DER X.509 certificate, whose SubjectPublicKeyInfo is used
func ExtractECPublicKeyPoint(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrUnrecognizedKeyFormat)
	}

	switch key[0] {
	case 0x04, 0x02, 0x03:
		return key, nil
	case 0x30:
	default:
		return nil, fmt.Errorf("%w: unexpected leading byte 0x%02x", ErrUnrecognizedKeyFormat, key[0])
	}

	if len(key) == p256SPKILength && bytes.HasPrefix(key, p256SPKIHeader) {
		return key[len(p256SPKIHeader):], nil
	}

	if len(key) > certificateThreshold {
		if point, err := pointFromCertificate(key); err == nil {
			return point, nil
		}
	}

	point, err := pointFromSPKI(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedKeyFormat, err)
	}
	return point, nil
}

// pointFromSPKI walks SEQUENCE { AlgorithmIdentifier, BIT STRING }
func pointFromSPKI(der []byte) ([]byte, error) {
	input := cryptobyte.String(der)

	var spki, bits cryptobyte.String
	if !input.ReadASN1(&spki, asn1.SEQUENCE) {
		return nil, errors.New("invalid SubjectPublicKeyInfo SEQUENCE")
	}
	if !spki.SkipASN1(asn1.SEQUENCE) {
		return nil, errors.New("missing AlgorithmIdentifier")
	}
	if !spki.ReadASN1(&bits, asn1.BIT_STRING) {
		return nil, errors.New("missing subjectPublicKey BIT STRING")
	}

	var unused uint8
	if !bits.ReadUint8(&unused) {
		return nil, errors.New("empty subjectPublicKey BIT STRING")
	}
	if unused != 0 {
		return nil, fmt.Errorf("subjectPublicKey has %d unused bits", unused)
	}
	if bits.Empty() {
		return nil, errors.New("subjectPublicKey has no point")
	}

	return []byte(bits), nil
}

// pointFromCertificate descends Certificate -> tbsCertificate and skips every field
// that precedes subjectPublicKeyInfo.
func pointFromCertificate(der []byte) ([]byte, error) {
	input := cryptobyte.String(der)

	var cert, tbs cryptobyte.String
	if !input.ReadASN1(&cert, asn1.SEQUENCE) {
		return nil, errors.New("invalid Certificate SEQUENCE")
	}
	if !cert.ReadASN1(&tbs, asn1.SEQUENCE) {
		return nil, errors.New("invalid tbsCertificate SEQUENCE")
	}

	if !tbs.SkipOptionalASN1(asn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, errors.New("invalid version tag")
	}

	for _, field := range []string{"serialNumber", "signature", "issuer", "validity", "subject"} {
		var skipped cryptobyte.String
		var tag asn1.Tag
		if !tbs.ReadAnyASN1(&skipped, &tag) {
			return nil, fmt.Errorf("missing %s", field)
		}
	}

	var spki cryptobyte.String
	if !tbs.ReadASN1Element(&spki, asn1.SEQUENCE) {
		return nil, errors.New("missing subjectPublicKeyInfo")
	}
	return pointFromSPKI(spki)
}
