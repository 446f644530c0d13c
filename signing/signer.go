// Package signing produces two-level signed barcodes.
//
// Compose builds a barcode bottom-up. Each signed region is encoded once, signed,
// and then spliced verbatim into its parent:
//
//	composed, err := signing.Compose(req, level1Signer, level2Signer)
//	if err != nil {
//		log.Fatal(err)
//	}
//	os.WriteFile("ticket.bin", composed.Barcode, 0644)
//
// SignAndEncodeTicket signs an already typed envelope, as produced by decoding and
// editing an existing barcode. It encodes the envelope with placeholder signatures
// to locate the signed regions, then signs them.
package signing

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/anchorageoss/railsig/crypto"
)

// ErrSequence is returned when a signing step runs before the step it depends on
var ErrSequence = errors.New("signing step out of order")

// Signer produces DER signatures for one level of a barcode
type Signer interface {
	// Sign hashes and signs message, returning a DER signature
	Sign(message []byte) ([]byte, error)
	Algorithm() crypto.SigningAlgorithm
	KeyAlgorithm() crypto.KeyAlgorithm
	// PublicKey is the uncompressed public point
	PublicKey() []byte
	// MaxSignatureLength is the longest DER signature Sign can return
	MaxSignatureLength() int
}

// ECDSASigner signs with an ECDSA private key using the digest paired with its curve
type ECDSASigner struct {
	key    *ecdsa.PrivateKey
	curve  *crypto.Curve
	alg    crypto.SigningAlgorithm
	keyAlg crypto.KeyAlgorithm
}

// NewECDSASigner creates a signer for a P-256, P-384 or P-521 key
func NewECDSASigner(key *ecdsa.PrivateKey) (*ECDSASigner, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	curve, ok := crypto.CurveForElliptic(key.Curve)
	if !ok {
		return nil, fmt.Errorf("%w: curve %s", crypto.ErrUnsupportedAlgorithm, key.Curve.Params().Name)
	}
	keyAlg, ok := crypto.LookupKeyAlgorithm(curve.OID)
	if !ok {
		return nil, fmt.Errorf("%w: curve %s", crypto.ErrUnsupportedAlgorithm, curve.Name)
	}

	return &ECDSASigner{
		key:    key,
		curve:  curve,
		alg:    crypto.ECDSASigningAlgorithmFor(curve),
		keyAlg: keyAlg,
	}, nil
}

// Sign signs message
func (s *ECDSASigner) Sign(message []byte) ([]byte, error) {
	return crypto.SignWithECDSA(s.key, s.alg.Hash, message)
}

// Algorithm returns the ECDSA signing algorithm of the curve
func (s *ECDSASigner) Algorithm() crypto.SigningAlgorithm { return s.alg }

// KeyAlgorithm returns the EC key algorithm of the curve
func (s *ECDSASigner) KeyAlgorithm() crypto.KeyAlgorithm { return s.keyAlg }

// PublicKey returns the uncompressed public point
func (s *ECDSASigner) PublicKey() []byte { return crypto.MarshalPoint(&s.key.PublicKey) }

// MaxSignatureLength returns the curve's longest DER signature
func (s *ECDSASigner) MaxSignatureLength() int { return s.curve.MaxDERSignatureLength }

// Curve returns the signing curve
func (s *ECDSASigner) Curve() *crypto.Curve { return s.curve }
