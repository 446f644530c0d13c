package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"
)

// Candidate is one public key consistent with an ECDSA signature
type Candidate struct {
	// Point is the uncompressed encoding 0x04 || X || Y
	Point       []byte
	RecoveryBit uint8
}

// RecoverPublicKey recovers the public key selected by recoveryBit from an ECDSA
// signature over digest.
//
// G = curve generator, N = curve order, m = message, (r, s) = signature
//
//  1. R = the point with X coordinate r and Y parity recoveryBit
//  2. e = H(m) truncated to the bit length of N
//  3. Q = r^-1 (sR - eG) = (-e r^-1)G + (s r^-1)R
//  4. Fail if Q is the point at infinity
//
// Only the X < N case is considered, so every signature has exactly two candidates.
func RecoverPublicKey(curve *Curve, digest []byte, r, s *big.Int, recoveryBit uint8) (*ecdsa.PublicKey, error) {
	ec := curve.Elliptic()
	if ec == nil {
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedAlgorithm, curve.Name)
	}
	params := ec.Params()
	n := params.N

	if r.Sign() <= 0 || s.Sign() <= 0 || r.Cmp(n) >= 0 || s.Cmp(n) >= 0 {
		return nil, errors.New("signature components out of range")
	}

	// Step 1.
	byteLen := (params.BitSize + 7) / 8
	compressed := make([]byte, 1+byteLen)
	compressed[0] = 0x02 | (recoveryBit & 0x01)
	r.FillBytes(compressed[1:])
	rx, ry := elliptic.UnmarshalCompressed(ec, compressed)
	if rx == nil {
		return nil, errors.New("signature is not for a valid curve point")
	}

	// Step 2.
	e := hashToInt(digest, n)

	// Step 3.
	rInv := new(big.Int).ModInverse(r, n)
	if rInv == nil {
		return nil, errors.New("signature R has no inverse")
	}
	u1 := new(big.Int).Mul(e, rInv)
	u1.Neg(u1).Mod(u1, n)
	u2 := new(big.Int).Mul(s, rInv)
	u2.Mod(u2, n)

	x1, y1 := ec.ScalarBaseMult(u1.Bytes())      //nolint:staticcheck // no recovery primitive in crypto/ecdsa
	x2, y2 := ec.ScalarMult(rx, ry, u2.Bytes()) //nolint:staticcheck
	qx, qy := ec.Add(x1, y1, x2, y2)            //nolint:staticcheck

	// Step 4.
	if qx.Sign() == 0 && qy.Sign() == 0 {
		return nil, errors.New("recovered pubkey is the point at infinity")
	}

	return &ecdsa.PublicKey{Curve: ec, X: qx, Y: qy}, nil
}

// RecoverCandidates returns every public key that can be recovered from a raw
// (r || s) signature over message and that independently verifies it. For a valid
// signature the result holds one or two candidates, one of which is the signer's.
func RecoverCandidates(curve *Curve, h crypto.Hash, message []byte, signature []byte) ([]Candidate, error) {
	if len(signature) != curve.RawSignatureLength() {
		return nil, fmt.Errorf("%w: raw signature is %d bytes, expected %d", ErrMalformedSignature, len(signature), curve.RawSignatureLength())
	}

	digest, err := Digest(h, message)
	if err != nil {
		return nil, err
	}

	r := new(big.Int).SetBytes(signature[:curve.ComponentLength])
	s := new(big.Int).SetBytes(signature[curve.ComponentLength:])

	var candidates []Candidate
	for bit := uint8(0); bit <= 1; bit++ {
		pub, err := RecoverPublicKey(curve, digest, r, s, bit)
		if err != nil {
			continue
		}
		if !ecdsa.Verify(pub, digest, r, s) {
			continue
		}
		candidates = append(candidates, Candidate{Point: MarshalPoint(pub), RecoveryBit: bit})
	}
	return candidates, nil
}

// hashToInt converts a digest to an integer following SEC 1, Version 2.0,
// Section 4.1.3, point 5, as crypto/ecdsa does.
func hashToInt(digest []byte, n *big.Int) *big.Int {
	orderBits := n.BitLen()
	orderBytes := (orderBits + 7) / 8
	if len(digest) > orderBytes {
		digest = digest[:orderBytes]
	}

	ret := new(big.Int).SetBytes(digest)
	excess := len(digest)*8 - orderBits
	if excess > 0 {
		ret.Rsh(ret, uint(excess))
	}
	return ret
}
