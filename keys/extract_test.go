package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/anchorageoss/railsig/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

func generateKey(t *testing.T, curve *crypto.Curve) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve.Elliptic(), rand.Reader)
	require.NoError(t, err)
	return key
}

func selfSignedCertificate(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1080),
		Subject:      pkix.Name{CommonName: "railsig test issuer", Organization: []string{"Test Railway"}},
		NotBefore:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

// spki wraps a point in a SubjectPublicKeyInfo without checking it
func spki(t *testing.T, curveOID []int, unusedBits byte, point []byte) []byte {
	t.Helper()
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier([]int{1, 2, 840, 10045, 2, 1})
			b.AddASN1ObjectIdentifier(curveOID)
		})
		b.AddASN1(asn1.BIT_STRING, func(b *cryptobyte.Builder) {
			b.AddUint8(unusedBits)
			b.AddBytes(point)
		})
	})
	out, err := b.Bytes()
	require.NoError(t, err)
	return out
}

func TestExtractECPublicKeyPointRaw(t *testing.T) {
	key := generateKey(t, crypto.CurveP256)
	uncompressed := crypto.MarshalPoint(&key.PublicKey)
	compressed := elliptic.MarshalCompressed(key.Curve, key.X, key.Y)

	for name, point := range map[string][]byte{"uncompressed": uncompressed, "compressed": compressed} {
		t.Run(name, func(t *testing.T) {
			got, err := ExtractECPublicKeyPoint(point)
			require.NoError(t, err)
			assert.Equal(t, point, got)
			// The same buffer comes back, not a copy.
			assert.Same(t, &point[0], &got[0])
		})
	}
}

func TestExtractECPublicKeyPointSPKI(t *testing.T) {
	for _, curve := range []*crypto.Curve{crypto.CurveP256, crypto.CurveP384, crypto.CurveP521} {
		t.Run(curve.Name, func(t *testing.T) {
			key := generateKey(t, curve)
			der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			require.NoError(t, err)

			got, err := ExtractECPublicKeyPoint(der)
			require.NoError(t, err)
			assert.Equal(t, crypto.MarshalPoint(&key.PublicKey), got)
		})
	}

	t.Run("P-256 SPKI takes the fixed header", func(t *testing.T) {
		key := generateKey(t, crypto.CurveP256)
		der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		require.NoError(t, err)
		require.Len(t, der, p256SPKILength)
		assert.Equal(t, p256SPKIHeader, der[:len(p256SPKIHeader)])
	})

	t.Run("P-521 SPKI uses a long form length", func(t *testing.T) {
		key := generateKey(t, crypto.CurveP521)
		der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, byte(0x81), der[1])
	})

	t.Run("compressed point inside SPKI", func(t *testing.T) {
		key := generateKey(t, crypto.CurveP384)
		compressed := elliptic.MarshalCompressed(key.Curve, key.X, key.Y)

		got, err := ExtractECPublicKeyPoint(spki(t, []int{1, 3, 132, 0, 34}, 0, compressed))
		require.NoError(t, err)
		assert.Equal(t, compressed, got)
	})
}

func TestExtractECPublicKeyPointCertificate(t *testing.T) {
	for _, curve := range []*crypto.Curve{crypto.CurveP256, crypto.CurveP384, crypto.CurveP521} {
		t.Run(curve.Name, func(t *testing.T) {
			key := generateKey(t, curve)
			cert := selfSignedCertificate(t, key)
			require.Greater(t, len(cert), certificateThreshold)

			got, err := ExtractECPublicKeyPoint(cert)
			require.NoError(t, err)
			assert.Equal(t, crypto.MarshalPoint(&key.PublicKey), got)
		})
	}
}

func TestExtractECPublicKeyPointErrors(t *testing.T) {
	key := generateKey(t, crypto.CurveP256)
	point := crypto.MarshalPoint(&key.PublicKey)

	tests := []struct {
		name string
		key  []byte
	}{
		{"empty", nil},
		{"unknown prefix", []byte{0x05, 0x01, 0x02}},
		{"truncated sequence", []byte{0x30, 0x10, 0x30}},
		{"sequence without algorithm", []byte{0x30, 0x03, 0x03, 0x01, 0x00}},
		{"unused bits set", spki(t, []int{1, 2, 840, 10045, 3, 1, 7}, 3, point)},
		{"empty bit string", spki(t, []int{1, 2, 840, 10045, 3, 1, 7}, 0, nil)},
		{"truncated certificate", selfSignedCertificate(t, key)[:150]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractECPublicKeyPoint(tt.key)
			assert.ErrorIs(t, err, ErrUnrecognizedKeyFormat)
		})
	}
}
