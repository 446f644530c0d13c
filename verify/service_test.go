package verify

import (
	"bytes"
	"context"
	"crypto/dsa" //nolint:staticcheck
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	encasn1 "encoding/asn1"
	"testing"

	"github.com/anchorageoss/railsig/crypto"
	"github.com/anchorageoss/railsig/envelope"
	"github.com/anchorageoss/railsig/keys"
	"github.com/anchorageoss/railsig/signing"
	"github.com/anchorageoss/railsig/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const level1PrivateKey = "487f361ddfd73440e707f4daa6775b376859e8a3c9f29b3bb694a12927c0213c:p256"

type fixture struct {
	level1Key *ecdsa.PrivateKey
	level1    *signing.ECDSASigner
	level2    *signing.ECDSASigner
	spki      []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l1Key, err := keys.ParsePrivateKey(level1PrivateKey)
	require.NoError(t, err)
	l1, err := signing.NewECDSASigner(l1Key)
	require.NoError(t, err)

	l2Key, err := ecdsa.GenerateKey(crypto.CurveP384.Elliptic(), rand.Reader)
	require.NoError(t, err)
	l2, err := signing.NewECDSASigner(l2Key)
	require.NoError(t, err)

	spki, err := x509.MarshalPKIXPublicKey(&l1Key.PublicKey)
	require.NoError(t, err)

	return &fixture{level1Key: l1Key, level1: l1, level2: l2, spki: spki}
}

func sampleRequest(t *testing.T, withDynamic bool) *signing.Request {
	t.Helper()
	body, err := ticket.EncodeBody(&ticket.Body{
		Issuing:   ticket.IssuingDetail{SecurityProviderNum: 1080, IssuerNum: 1080, IssuerName: "Test Railway", IssuingYear: 2026, IssuingDay: 292, Currency: "CHF"},
		Travelers: []ticket.Traveler{{FirstName: "Ada", LastName: "Lovelace"}},
		Documents: []ticket.Document{{Kind: "openTicket", Reference: "ABC123", FromStation: "Bern", ToStation: "Basel", ValidFromDay: 292, ValidUntilDay: 293, Price: 5200}},
	})
	require.NoError(t, err)

	req := &signing.Request{
		Version: 2,
		Level1: envelope.Level1Data{
			SecurityProviderNum: envelope.Ptr(uint32(1080)),
			KeyID:               envelope.Ptr(uint32(7)),
			DataSequence:        []envelope.DataBlock{body},
		},
	}
	if withDynamic {
		dyn, err := ticket.EncodeDynamicContent(&ticket.DynamicContent{AppID: "railsig-test", TimestampDay: 292, TimestampTime: 3600, Latitude: 46948090, Longitude: 7447440})
		require.NoError(t, err)
		req.Level2Data = &dyn
	}
	return req
}

func (f *fixture) dynamicBarcode(t *testing.T) []byte {
	t.Helper()
	composed, err := signing.Compose(sampleRequest(t, true), f.level1, f.level2)
	require.NoError(t, err)
	return composed.Barcode
}

func TestNewService(t *testing.T) {
	dir := keys.NewMemoryDirectory()
	service := NewService(dir)
	require.NotNil(t, service)
	assert.Equal(t, dir, service.directory)
}

func TestVerifyDynamicBarcode(t *testing.T) {
	f := newFixture(t)
	barcode := f.dynamicBarcode(t)

	result, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
		Barcode:         barcode,
		Level1PublicKey: f.spki,
	})
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Version)
	assert.Equal(t, "1080", result.Provider)
	require.NotNil(t, result.KeyID)
	assert.Equal(t, uint32(7), *result.KeyID)

	assert.True(t, result.Level1.Present)
	assert.True(t, result.Level1.Valid)
	assert.Equal(t, "ECDSA-SHA256", result.Level1.Algorithm)
	assert.Equal(t, "P-256", result.Level1.Curve)
	assert.Empty(t, result.Level1.Error)

	assert.True(t, result.Level2.Present)
	assert.True(t, result.Level2.Valid)
	assert.Equal(t, "ECDSA-SHA384", result.Level2.Algorithm)
	assert.Equal(t, "P-384", result.Level2.Curve)

	require.Len(t, result.Regions, 2)
	assert.Equal(t, envelope.FieldLevel1Data, result.Regions[0].Name)
	assert.Equal(t, result.Regions[0].Start, result.Regions[1].Start)
	assert.Greater(t, result.Regions[1].End, result.Regions[0].End)
	assert.Len(t, result.Regions[0].SHA256, 64)

	require.Len(t, result.Blocks, 2)
	require.NotNil(t, result.Blocks[0].Body)
	assert.Equal(t, "Test Railway", result.Blocks[0].Body.Issuing.IssuerName)
	require.NotNil(t, result.Blocks[1].Dynamic)
	assert.Equal(t, "railsig-test", result.Blocks[1].Dynamic.AppID)
}

func TestVerifyStaticBarcode(t *testing.T) {
	f := newFixture(t)
	composed, err := signing.Compose(sampleRequest(t, false), f.level1, nil)
	require.NoError(t, err)

	result, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
		Barcode:         composed.Barcode,
		Level1PublicKey: crypto.MarshalPoint(&f.level1Key.PublicKey),
	})
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.True(t, result.Level1.Valid)
	assert.False(t, result.Level2.Present)
	assert.False(t, result.Level2.Valid)
	assert.Nil(t, result.Metadata.Level2Signature)
	require.Len(t, result.Blocks, 1)
}

func TestVerifyDirectoryLookup(t *testing.T) {
	f := newFixture(t)
	barcode := f.dynamicBarcode(t)

	t.Run("key found", func(t *testing.T) {
		dir := keys.NewMemoryDirectory()
		dir.Add(keys.ProviderRef{Num: envelope.Ptr(uint32(1080))}, 7, f.spki)

		result, err := NewService(dir).Verify(context.Background(), &VerifyRequest{Barcode: barcode})
		require.NoError(t, err)
		assert.True(t, result.Valid)
	})

	t.Run("key missing", func(t *testing.T) {
		dir := keys.NewMemoryDirectory()
		dir.Add(keys.ProviderRef{Num: envelope.Ptr(uint32(1080))}, 8, f.spki)

		_, err := NewService(dir).Verify(context.Background(), &VerifyRequest{Barcode: barcode})
		require.Error(t, err)
		assert.ErrorIs(t, err, keys.ErrKeyNotFound)
	})

	t.Run("no directory", func(t *testing.T) {
		_, err := NewService(nil).Verify(context.Background(), &VerifyRequest{Barcode: barcode})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no key directory")
	})

	t.Run("no key id", func(t *testing.T) {
		req := sampleRequest(t, false)
		req.Level1.KeyID = nil
		composed, err := signing.Compose(req, f.level1, nil)
		require.NoError(t, err)

		_, err = NewService(keys.NewMemoryDirectory()).Verify(context.Background(), &VerifyRequest{Barcode: composed.Barcode})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no key id")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		dir := keys.NewMemoryDirectory()
		dir.Add(keys.ProviderRef{Num: envelope.Ptr(uint32(1080))}, 7, f.spki)

		_, err := NewService(dir).Verify(ctx, &VerifyRequest{Barcode: barcode})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestVerifyTampered(t *testing.T) {
	f := newFixture(t)
	barcode := f.dynamicBarcode(t)

	idx := bytes.Index(barcode, []byte("Railway"))
	require.Positive(t, idx)
	tampered := append([]byte(nil), barcode...)
	tampered[idx] = 'r'

	result, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
		Barcode:         tampered,
		Level1PublicKey: f.spki,
	})
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.False(t, result.Level1.Valid)
	assert.Equal(t, "signature verification failed", result.Level1.Error)
	// Level 2 covers the Level 1 bytes as well
	assert.False(t, result.Level2.Valid)
}

func TestVerifyWrongKey(t *testing.T) {
	f := newFixture(t)
	barcode := f.dynamicBarcode(t)

	other, err := ecdsa.GenerateKey(crypto.CurveP256.Elliptic(), rand.Reader)
	require.NoError(t, err)

	result, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
		Barcode:         barcode,
		Level1PublicKey: crypto.MarshalPoint(&other.PublicKey),
	})
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.False(t, result.Level1.Valid)
	// Level 2 is independent of the Level 1 key
	assert.True(t, result.Level2.Valid)
}

func TestVerifyMalformed(t *testing.T) {
	f := newFixture(t)
	barcode := f.dynamicBarcode(t)

	t.Run("truncated barcode", func(t *testing.T) {
		_, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
			Barcode:         barcode[:len(barcode)-3],
			Level1PublicKey: f.spki,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, envelope.ErrMalformedEnvelope)
	})

	t.Run("unrecognized key", func(t *testing.T) {
		_, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
			Barcode:         barcode,
			Level1PublicKey: []byte{0x01, 0x02, 0x03},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, keys.ErrUnrecognizedKeyFormat)
	})

	t.Run("key on the wrong curve", func(t *testing.T) {
		_, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
			Barcode:         barcode,
			Level1PublicKey: f.level2.PublicKey(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid public key")
	})
}

// rsaLabelledSigner claims an RSA algorithm so the verifier takes the RSA path
type rsaLabelledSigner struct {
	*signing.ECDSASigner
}

func (s rsaLabelledSigner) Algorithm() crypto.SigningAlgorithm {
	alg, _ := crypto.LookupSigningAlgorithm("1.2.840.113549.1.1.11")
	return alg
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	f := newFixture(t)
	composed, err := signing.Compose(sampleRequest(t, false), rsaLabelledSigner{f.level1}, nil)
	require.NoError(t, err)

	_, err = NewService(nil).Verify(context.Background(), &VerifyRequest{
		Barcode:         composed.Barcode,
		Level1PublicKey: f.spki,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, crypto.ErrUnsupportedAlgorithm)
}

// dsaSigner signs Level 1 data with DSA-SHA1
type dsaSigner struct {
	key  *dsa.PrivateKey
	spki []byte
}

func newDSASigner(t *testing.T) *dsaSigner {
	t.Helper()
	key := new(dsa.PrivateKey)
	require.NoError(t, dsa.GenerateParameters(&key.Parameters, rand.Reader, dsa.L1024N160))
	require.NoError(t, dsa.GenerateKey(key, rand.Reader))

	y := cryptobyte.NewBuilder(nil)
	y.AddASN1BigInt(key.Y)
	yBytes, err := y.Bytes()
	require.NoError(t, err)

	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, func(spki *cryptobyte.Builder) {
		spki.AddASN1(asn1.SEQUENCE, func(alg *cryptobyte.Builder) {
			alg.AddASN1ObjectIdentifier(encasn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1})
			alg.AddASN1(asn1.SEQUENCE, func(params *cryptobyte.Builder) {
				params.AddASN1BigInt(key.P)
				params.AddASN1BigInt(key.Q)
				params.AddASN1BigInt(key.G)
			})
		})
		spki.AddASN1BitString(yBytes)
	})
	spki, err := b.Bytes()
	require.NoError(t, err)

	return &dsaSigner{key: key, spki: spki}
}

func (s *dsaSigner) Sign(message []byte) ([]byte, error) {
	digest := sha1.Sum(message)
	r, sv, err := dsa.Sign(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 40)
	r.FillBytes(raw[:20])
	sv.FillBytes(raw[20:])
	return crypto.RawToDER(raw, 20)
}

func (s *dsaSigner) Algorithm() crypto.SigningAlgorithm {
	alg, _ := crypto.LookupSigningAlgorithm("1.2.840.10040.4.3")
	return alg
}

func (s *dsaSigner) KeyAlgorithm() crypto.KeyAlgorithm { return crypto.KeyAlgorithm{} }
func (s *dsaSigner) PublicKey() []byte                 { return s.spki }
func (s *dsaSigner) MaxSignatureLength() int           { return 48 }

func TestVerifyDSALevel1(t *testing.T) {
	f := newFixture(t)
	signer := newDSASigner(t)

	composed, err := signing.Compose(sampleRequest(t, true), signer, f.level2)
	require.NoError(t, err)

	result, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
		Barcode:         composed.Barcode,
		Level1PublicKey: signer.spki,
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "DSA-SHA1", result.Level1.Algorithm)
	assert.True(t, result.Level2.Valid)

	t.Run("EC key for a DSA signature", func(t *testing.T) {
		_, err := NewService(nil).Verify(context.Background(), &VerifyRequest{
			Barcode:         composed.Barcode,
			Level1PublicKey: f.spki,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, keys.ErrUnrecognizedKeyFormat)
	})
}
