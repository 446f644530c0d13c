// Package crypto provides the signature plumbing for two-level signed barcodes.
//
// This package provides:
//   - ECDSA P-256/P-384/P-521 signing and verification
//   - DSA verification for legacy Level 1 keys
//   - DER <-> raw (r||s) conversion of signatures
//   - Algorithm and curve tables keyed by object identifier
//   - Public key recovery from bare ECDSA signatures
//
// # Signing
//
// Sign data with the digest paired with the key's curve:
//
//	der, err := crypto.SignWithECDSA(privateKey, crypto.CurveP256.Hash, data)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Verification
//
// Verification works on the raw r||s form, so DER signatures taken from a barcode
// are converted first:
//
//	raw, err := crypto.DERToRaw(der, crypto.CurveP256.ComponentLength)
//	valid := crypto.VerifyECDSASignature(publicKey, crypto.CurveP256.Hash, data, raw)
//
// # Recovery
//
// Recover the candidate public keys behind a signature:
//
//	candidates, err := crypto.RecoverCandidates(crypto.CurveP256, crypto.CurveP256.Hash, data, raw)
package crypto

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // Level 1 keys of older issuers are DSA
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// ECDSASignature represents an ECDSA signature for ASN.1 encoding
type ECDSASignature struct {
	R, S *big.Int
}

// SignWithECDSA signs data with an ECDSA private key and returns a DER signature
func SignWithECDSA(privateKey *ecdsa.PrivateKey, h crypto.Hash, data []byte) ([]byte, error) {
	digest, err := Digest(h, data)
	if err != nil {
		return nil, err
	}

	der, err := ecdsa.SignASN1(rand.Reader, privateKey, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign with ECDSA: %w", err)
	}
	return der, nil
}

// VerifyECDSASignature verifies a raw (r || s) ECDSA signature
func VerifyECDSASignature(publicKey *ecdsa.PublicKey, h crypto.Hash, data []byte, signature []byte) bool {
	curve, ok := CurveForElliptic(publicKey.Curve)
	if !ok || len(signature) != curve.RawSignatureLength() {
		return false
	}

	digest, err := Digest(h, data)
	if err != nil {
		return false
	}

	r := new(big.Int).SetBytes(signature[:curve.ComponentLength])
	s := new(big.Int).SetBytes(signature[curve.ComponentLength:])
	return ecdsa.Verify(publicKey, digest, r, s)
}

// VerifyDSASignature verifies a DER encoded DSA signature
func VerifyDSASignature(publicKey *dsa.PublicKey, h crypto.Hash, data []byte, der []byte) bool {
	componentLength := (publicKey.Q.BitLen() + 7) / 8
	raw, err := DERToRaw(der, componentLength)
	if err != nil {
		return false
	}

	digest, err := Digest(h, data)
	if err != nil {
		return false
	}
	// FIPS 186 takes the leftmost min(N, outlen) bits of the digest.
	if len(digest) > componentLength {
		digest = digest[:componentLength]
	}

	r := new(big.Int).SetBytes(raw[:componentLength])
	s := new(big.Int).SetBytes(raw[componentLength:])
	return dsa.Verify(publicKey, digest, r, s)
}

// UnmarshalPoint parses a compressed (0x02/0x03) or uncompressed (0x04) point
func UnmarshalPoint(curve *Curve, point []byte) (*ecdsa.PublicKey, error) {
	ec := curve.Elliptic()
	if ec == nil {
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedAlgorithm, curve.Name)
	}
	if len(point) == 0 {
		return nil, errors.New("empty public key point")
	}

	var x, y *big.Int
	switch point[0] {
	case 0x04:
		x, y = elliptic.Unmarshal(ec, point) //nolint:staticcheck // big.Int coordinates feed recovery
	case 0x02, 0x03:
		x, y = elliptic.UnmarshalCompressed(ec, point)
	default:
		return nil, fmt.Errorf("unexpected point prefix 0x%02x", point[0])
	}
	if x == nil {
		return nil, fmt.Errorf("public key is not a valid %s point", curve.Name)
	}

	return &ecdsa.PublicKey{Curve: ec, X: x, Y: y}, nil
}

// MarshalPoint encodes a public key as an uncompressed point (0x04 || X || Y)
func MarshalPoint(publicKey *ecdsa.PublicKey) []byte {
	byteLen := (publicKey.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 1+2*byteLen)
	out[0] = 0x04
	publicKey.X.FillBytes(out[1 : 1+byteLen])
	publicKey.Y.FillBytes(out[1+byteLen:])
	return out
}
