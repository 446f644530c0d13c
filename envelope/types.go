// Package envelope provides the two-level signed barcode envelope: its typed model,
// an offset-tracking decoder, signed region extraction and composable encoders.
//
// Envelopes are Borsh-encoded. The first field is the version tag ("U1", "U2"),
// followed by the Level 2 signed data and the optional Level 2 signature:
//
//	Envelope         = format, level2SignedData, level2Signature?
//	Level2SignedData = level1Data, level1Signature?, level2Data?
//	Level1Data       = provider, key id, data blocks, algorithms, level2PublicKey?, ...
//
// Data always precedes the signature that covers it, so a signature never moves the
// bytes it signs.
//
// # Verification
//
// Extract returns the exact signed byte ranges as sub-slices of the input:
//
//	regions, err := envelope.Extract(barcode)
//	if err != nil {
//		log.Fatal(err)
//	}
//	hash := envelope.ComputeHash(regions.Level1Data.Bytes)
//
// # Encoding
//
// Encoders build the envelope bottom-up and splice already-encoded blocks verbatim:
//
//	l1, err := envelope.EncodeLevel1Data(2, level1)
//	sig1 := sign(l1.Bytes())
//	l2, err := envelope.EncodeLevel2SignedData(l1, sig1, nil)
//	sig2 := sign(l2.Bytes())
//	barcode, err := envelope.EncodeEnvelope(l2, sig2)
package envelope

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedEnvelope is returned when envelope bytes do not decode
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnsupportedVersion is returned for a version tag with no known layout
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
)

// DataBlock is a tagged payload such as the ticket body or dynamic content
type DataBlock struct {
	Format string `borsh:"format"`
	Data   []byte `borsh:"data"`
}

// Level1Data is the content signed by the security provider's Level 1 key.
// Fields tagged borsh_skip only exist from U2 on and are encoded separately.
type Level1Data struct {
	SecurityProviderNum *uint32     `borsh:"security_provider_num"`
	SecurityProviderIA5 *string     `borsh:"security_provider_ia5"`
	KeyID               *uint32     `borsh:"key_id"`
	DataSequence        []DataBlock `borsh:"data_sequence"`
	Level1KeyAlg        *string     `borsh:"level1_key_alg"`
	Level2KeyAlg        *string     `borsh:"level2_key_alg"`
	Level1SigningAlg    *string     `borsh:"level1_signing_alg"`
	Level2SigningAlg    *string     `borsh:"level2_signing_alg"`
	Level2PublicKey     *[]byte     `borsh:"level2_public_key"`

	EndOfValidityYear *uint16 `borsh_skip:"true"`
	EndOfValidityDay  *uint16 `borsh_skip:"true"`
	EndOfValidityTime *uint16 `borsh_skip:"true"`
	ValidityDuration  *uint32 `borsh_skip:"true"`
}

// validityV2 is the U2 tail of Level1Data
type validityV2 struct {
	EndOfValidityYear *uint16
	EndOfValidityDay  *uint16
	EndOfValidityTime *uint16
	ValidityDuration  *uint32
}

func (l *Level1Data) hasValidity() bool {
	return l.EndOfValidityYear != nil || l.EndOfValidityDay != nil ||
		l.EndOfValidityTime != nil || l.ValidityDuration != nil
}

// Level2SignedData is the content signed by the per-ticket Level 2 key
type Level2SignedData struct {
	Level1Data      Level1Data
	Level1Signature *[]byte
	Level2Data      *DataBlock
}

// Envelope is a whole barcode payload. A nil signature pointer means the signature
// is absent, which is distinct from a present but empty signature.
type Envelope struct {
	Format           string
	Level2SignedData Level2SignedData
	Level2Signature  *[]byte
}

// Version returns the numeric version of the format tag
func (e *Envelope) Version() (int, error) {
	return ParseVersionTag(e.Format)
}

// Clone returns a deep copy
func (e *Envelope) Clone() *Envelope {
	c := &Envelope{
		Format:          e.Format,
		Level2Signature: cloneBytesPtr(e.Level2Signature),
		Level2SignedData: Level2SignedData{
			Level1Data:      e.Level2SignedData.Level1Data.Clone(),
			Level1Signature: cloneBytesPtr(e.Level2SignedData.Level1Signature),
		},
	}
	if d := e.Level2SignedData.Level2Data; d != nil {
		block := d.clone()
		c.Level2SignedData.Level2Data = &block
	}
	return c
}

// Clone returns a deep copy
func (l Level1Data) Clone() Level1Data {
	c := l
	c.SecurityProviderNum = clonePtr(l.SecurityProviderNum)
	c.SecurityProviderIA5 = clonePtr(l.SecurityProviderIA5)
	c.KeyID = clonePtr(l.KeyID)
	c.Level1KeyAlg = clonePtr(l.Level1KeyAlg)
	c.Level2KeyAlg = clonePtr(l.Level2KeyAlg)
	c.Level1SigningAlg = clonePtr(l.Level1SigningAlg)
	c.Level2SigningAlg = clonePtr(l.Level2SigningAlg)
	c.Level2PublicKey = cloneBytesPtr(l.Level2PublicKey)
	c.EndOfValidityYear = clonePtr(l.EndOfValidityYear)
	c.EndOfValidityDay = clonePtr(l.EndOfValidityDay)
	c.EndOfValidityTime = clonePtr(l.EndOfValidityTime)
	c.ValidityDuration = clonePtr(l.ValidityDuration)
	if l.DataSequence != nil {
		c.DataSequence = make([]DataBlock, len(l.DataSequence))
		for i, block := range l.DataSequence {
			c.DataSequence[i] = block.clone()
		}
	}
	return c
}

func (d DataBlock) clone() DataBlock {
	return DataBlock{Format: d.Format, Data: cloneBytes(d.Data)}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func cloneBytesPtr(p *[]byte) *[]byte {
	if p == nil {
		return nil
	}
	b := cloneBytes(*p)
	if b == nil {
		b = []byte{}
	}
	return &b
}

// Ptr returns a pointer to v, for filling optional fields
func Ptr[T any](v T) *T {
	return &v
}

// BytesPtr returns a present optional byte string. A nil b yields nil (absent).
func BytesPtr(b []byte) *[]byte {
	if b == nil {
		return nil
	}
	return &b
}

// VersionTag returns the format tag of a version, e.g. 2 -> "U2"
func VersionTag(version int) string {
	return "U" + strconv.Itoa(version)
}

// ParseVersionTag parses a "U<n>" format tag
func ParseVersionTag(tag string) (int, error) {
	digits, ok := strings.CutPrefix(tag, "U")
	if !ok || digits == "" || len(digits) > maxVersionDigits {
		return 0, fmt.Errorf("%w: invalid version tag %q", ErrMalformedEnvelope, tag)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: invalid version tag %q", ErrMalformedEnvelope, tag)
		}
	}
	version, _ := strconv.Atoi(digits)
	return version, nil
}
