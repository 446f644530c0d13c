// Package keys provides public key normalization, key directories and key file loading.
//
// # Public Keys
//
// Level 1 keys arrive as raw points, DER SubjectPublicKeyInfo or X.509 certificates.
// All are reduced to a raw point before verification:
//
//	point, err := keys.ExtractECPublicKeyPoint(keyBytes)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Key Directory
//
// A key directory resolves (provider, key id) to the issuer's Level 1 key:
//
//	dir := &keys.FileDirectory{Path: "keys.json"}
//	key, err := dir.Lookup(ctx, keys.ProviderRef{Code: "1080"}, 1)
//
// # Key File Format
//
// Signing keys are stored as two files:
//
//	<name>.private - Format: "hexkey:curve" where hexkey is the private scalar
//	<name>.public  - Hex-encoded compressed public key
//
// The curve is one of "p256", "p384" or "p521".
package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/anchorageoss/railsig/crypto"
)

var curveNames = map[string]*crypto.Curve{
	"p256": crypto.CurveP256,
	"p384": crypto.CurveP384,
	"p521": crypto.CurveP521,
}

// CurveFileName returns the key file name of a curve ("p256", "p384" or "p521")
func CurveFileName(c *crypto.Curve) (string, error) {
	for name, curve := range curveNames {
		if curve == c {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: curve %s", crypto.ErrUnsupportedAlgorithm, c.Name)
}

// CurveFromFileName resolves a key file curve name
func CurveFromFileName(name string) (*crypto.Curve, error) {
	curve, ok := curveNames[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported curve: %s", name)
	}
	return curve, nil
}

// LoadPrivateKey reads a "hexkey:curve" private key file
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	privateKeyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return ParsePrivateKey(string(privateKeyBytes))
}

// ParsePrivateKey parses the "hexkey:curve" private key format
func ParsePrivateKey(content string) (*ecdsa.PrivateKey, error) {
	parts := strings.Split(strings.TrimSpace(content), ":")
	if len(parts) != 2 {
		return nil, errors.New("invalid private key format, expected 'hexkey:curve'")
	}

	curve, err := CurveFromFileName(parts[1])
	if err != nil {
		return nil, err
	}

	scalar, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key hex: %w", err)
	}
	if len(scalar) != curve.ComponentLength {
		return nil, fmt.Errorf("private key is %d bytes, %s needs %d", len(scalar), curve.Name, curve.ComponentLength)
	}

	ec := curve.Elliptic()
	d := new(big.Int).SetBytes(scalar)
	if d.Sign() == 0 || d.Cmp(ec.Params().N) >= 0 {
		return nil, errors.New("private key scalar out of range")
	}

	privateKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: ec,
		},
		D: d,
	}

	// Calculate public key point
	privateKey.X, privateKey.Y = ec.ScalarBaseMult(scalar) //nolint:staticcheck // big.Int key fields

	return privateKey, nil
}

// WritePrivateKey stores a key in the "hexkey:curve" format, readable by the owner only
func WritePrivateKey(path string, key *ecdsa.PrivateKey) error {
	curve, ok := crypto.CurveForElliptic(key.Curve)
	if !ok {
		return fmt.Errorf("%w: curve %s", crypto.ErrUnsupportedAlgorithm, key.Curve.Params().Name)
	}
	name, err := CurveFileName(curve)
	if err != nil {
		return err
	}

	scalar := make([]byte, curve.ComponentLength)
	key.D.FillBytes(scalar)

	content := hex.EncodeToString(scalar) + ":" + name + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write private key file: %w", err)
	}
	return nil
}

// WritePublicKey stores the hex-encoded compressed public key
func WritePublicKey(path string, key *ecdsa.PublicKey) error {
	compressed := elliptic.MarshalCompressed(key.Curve, key.X, key.Y)
	if err := os.WriteFile(path, []byte(hex.EncodeToString(compressed)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write public key file: %w", err)
	}
	return nil
}

// LoadPublicKeyFile reads a public key file holding hex, base64, PEM or raw DER
func LoadPublicKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if !isText(data) {
		return data, nil
	}
	return DecodeKeyText(string(data))
}

// isText reports whether data is printable ASCII. Hex text of a point starts with
// '0', which is also the DER SEQUENCE tag, so the first byte alone is not enough.
func isText(data []byte) bool {
	for _, c := range data {
		if c != '\n' && c != '\r' && c != '\t' && (c < 0x20 || c > 0x7e) {
			return false
		}
	}
	return true
}

// DecodeKeyText decodes a textual key: PEM, then hex, then base64
func DecodeKeyText(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty public key")
	}

	if strings.HasPrefix(text, "-----BEGIN") {
		block, _ := pem.Decode([]byte(text))
		if block == nil {
			return nil, errors.New("failed to decode PEM block")
		}
		return block.Bytes, nil
	}

	if b, err := hex.DecodeString(text); err == nil {
		return b, nil
	}

	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("public key is neither hex, base64 nor PEM: %w", err)
	}
	return b, nil
}
