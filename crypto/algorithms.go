package crypto

import (
	"crypto"
	"crypto/elliptic"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
)

// ErrUnsupportedAlgorithm is returned when an algorithm identifier is not in the
// known tables, or when an operation needs an algorithm kind the identifier does not
// provide (e.g. recovery from a DSA signature).
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

// SignatureKind is the family of a signing algorithm
type SignatureKind uint8

const (
	KindECDSA SignatureKind = iota + 1
	KindDSA
	KindRSA
)

// String converts SignatureKind to string format
func (k SignatureKind) String() string {
	switch k {
	case KindECDSA:
		return "ECDSA"
	case KindDSA:
		return "DSA"
	case KindRSA:
		return "RSA"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// KeyKind is the family of a public key algorithm
type KeyKind uint8

const (
	KeyKindEC KeyKind = iota + 1
	KeyKindRSA
)

// String converts KeyKind to string format
func (k KeyKind) String() string {
	switch k {
	case KeyKindEC:
		return "EC"
	case KeyKindRSA:
		return "RSA"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Curve describes a NIST prime curve and the sizes derived from it.
type Curve struct {
	Name string
	// ComponentLength is the byte width of r and s in a raw signature.
	ComponentLength int
	// MaxDERSignatureLength is the longest DER SEQUENCE{r, s} the curve can produce.
	MaxDERSignatureLength int
	// Hash is the digest conventionally paired with the curve.
	Hash crypto.Hash
	OID  string
}

// Elliptic returns the crypto/elliptic implementation of the curve
func (c *Curve) Elliptic() elliptic.Curve {
	switch c.Name {
	case "P-256":
		return elliptic.P256()
	case "P-384":
		return elliptic.P384()
	case "P-521":
		return elliptic.P521()
	}
	return nil
}

// RawSignatureLength is the size of r||s for this curve
func (c *Curve) RawSignatureLength() int {
	return 2 * c.ComponentLength
}

var (
	CurveP256 = &Curve{Name: "P-256", ComponentLength: 32, MaxDERSignatureLength: 72, Hash: crypto.SHA256, OID: "1.2.840.10045.3.1.7"}
	CurveP384 = &Curve{Name: "P-384", ComponentLength: 48, MaxDERSignatureLength: 104, Hash: crypto.SHA384, OID: "1.3.132.0.34"}
	CurveP521 = &Curve{Name: "P-521", ComponentLength: 66, MaxDERSignatureLength: 139, Hash: crypto.SHA512, OID: "1.3.132.0.35"}
)

var curves = []*Curve{CurveP256, CurveP384, CurveP521}

// CurveByName resolves "P-256", "P-384" or "P-521"
func CurveByName(name string) (*Curve, bool) {
	for _, c := range curves {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// CurveForElliptic maps a crypto/elliptic curve back to its table entry
func CurveForElliptic(ec elliptic.Curve) (*Curve, bool) {
	if ec == nil {
		return nil, false
	}
	return CurveByName(ec.Params().Name)
}

// CurveForHash returns the curve conventionally paired with a digest. It is the
// fallback used when a barcode names its signing algorithm but not its key algorithm.
func CurveForHash(h crypto.Hash) (*Curve, bool) {
	for _, c := range curves {
		if c.Hash == h {
			return c, true
		}
	}
	return nil, false
}

// SigningAlgorithm is an entry of the signing algorithm table
type SigningAlgorithm struct {
	OID  string
	Name string
	Hash crypto.Hash
	Kind SignatureKind
}

// KeyAlgorithm is an entry of the key algorithm table
type KeyAlgorithm struct {
	OID   string
	Name  string
	Kind  KeyKind
	Curve *Curve
}

var signingAlgorithms = map[string]SigningAlgorithm{
	"1.2.840.10045.4.3.2":    {OID: "1.2.840.10045.4.3.2", Name: "ECDSA-SHA256", Hash: crypto.SHA256, Kind: KindECDSA},
	"1.2.840.10045.4.3.3":    {OID: "1.2.840.10045.4.3.3", Name: "ECDSA-SHA384", Hash: crypto.SHA384, Kind: KindECDSA},
	"1.2.840.10045.4.3.4":    {OID: "1.2.840.10045.4.3.4", Name: "ECDSA-SHA512", Hash: crypto.SHA512, Kind: KindECDSA},
	"1.2.840.10040.4.3":      {OID: "1.2.840.10040.4.3", Name: "DSA-SHA1", Hash: crypto.SHA1, Kind: KindDSA},
	"2.16.840.1.101.3.4.3.1": {OID: "2.16.840.1.101.3.4.3.1", Name: "DSA-SHA224", Hash: crypto.SHA224, Kind: KindDSA},
	"2.16.840.1.101.3.4.3.2": {OID: "2.16.840.1.101.3.4.3.2", Name: "DSA-SHA256", Hash: crypto.SHA256, Kind: KindDSA},
	"1.2.840.113549.1.1.11":  {OID: "1.2.840.113549.1.1.11", Name: "RSA-SHA256", Hash: crypto.SHA256, Kind: KindRSA},
}

var keyAlgorithms = map[string]KeyAlgorithm{
	CurveP256.OID:          {OID: CurveP256.OID, Name: "EC P-256", Kind: KeyKindEC, Curve: CurveP256},
	CurveP384.OID:          {OID: CurveP384.OID, Name: "EC P-384", Kind: KeyKindEC, Curve: CurveP384},
	CurveP521.OID:          {OID: CurveP521.OID, Name: "EC P-521", Kind: KeyKindEC, Curve: CurveP521},
	"1.2.840.113549.1.1.1": {OID: "1.2.840.113549.1.1.1", Name: "RSA", Kind: KeyKindRSA},
}

// LookupSigningAlgorithm resolves a signing algorithm OID. Unknown identifiers
// report false.
func LookupSigningAlgorithm(oid string) (SigningAlgorithm, bool) {
	alg, ok := signingAlgorithms[oid]
	return alg, ok
}

// LookupKeyAlgorithm resolves a key algorithm OID. Unknown identifiers report false.
func LookupKeyAlgorithm(oid string) (KeyAlgorithm, bool) {
	alg, ok := keyAlgorithms[oid]
	return alg, ok
}

// ECDSASigningAlgorithmFor returns the ECDSA signing algorithm paired with a curve
func ECDSASigningAlgorithmFor(c *Curve) SigningAlgorithm {
	for _, alg := range signingAlgorithms {
		if alg.Kind == KindECDSA && alg.Hash == c.Hash {
			return alg
		}
	}
	return SigningAlgorithm{}
}

// ResolveECDSA picks the signing algorithm and curve for an ECDSA signature from
// the two OIDs carried by a barcode. The key algorithm may be empty, in which
// case the curve is inferred from the digest.
func ResolveECDSA(signingOID, keyOID string) (SigningAlgorithm, *Curve, error) {
	alg, ok := LookupSigningAlgorithm(signingOID)
	if !ok {
		return SigningAlgorithm{}, nil, fmt.Errorf("%w: signing algorithm %q", ErrUnsupportedAlgorithm, signingOID)
	}
	if alg.Kind != KindECDSA {
		return SigningAlgorithm{}, nil, fmt.Errorf("%w: %s is not ECDSA", ErrUnsupportedAlgorithm, alg.Name)
	}

	if keyOID == "" {
		curve, ok := CurveForHash(alg.Hash)
		if !ok {
			return SigningAlgorithm{}, nil, fmt.Errorf("%w: no curve for %s", ErrUnsupportedAlgorithm, alg.Name)
		}
		return alg, curve, nil
	}

	keyAlg, ok := LookupKeyAlgorithm(keyOID)
	if !ok {
		return SigningAlgorithm{}, nil, fmt.Errorf("%w: key algorithm %q", ErrUnsupportedAlgorithm, keyOID)
	}
	if keyAlg.Kind != KeyKindEC {
		return SigningAlgorithm{}, nil, fmt.Errorf("%w: %s is not an EC key", ErrUnsupportedAlgorithm, keyAlg.Name)
	}
	return alg, keyAlg.Curve, nil
}

// Digest hashes data with h
func Digest(h crypto.Hash, data []byte) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: hash %v not available", ErrUnsupportedAlgorithm, h)
	}
	hasher := h.New()
	hasher.Write(data)
	return hasher.Sum(nil), nil
}
