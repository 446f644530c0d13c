package envelope

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/near/borsh-go"
)

// BlockKind names the encoder that produced a RawBlock
type BlockKind uint8

const (
	BlockLevel1Data BlockKind = iota + 1
	BlockLevel2SignedData
)

// String converts BlockKind to string format
func (k BlockKind) String() string {
	switch k {
	case BlockLevel1Data:
		return FieldLevel1Data
	case BlockLevel2SignedData:
		return FieldLevel2SignedData
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// RawBlock is an encoded structure that is spliced verbatim into its parent.
// It cannot be modified after creation.
type RawBlock struct {
	kind    BlockKind
	version int
	b       []byte
}

// Kind returns the encoder that produced the block
func (r RawBlock) Kind() BlockKind { return r.kind }

// Version returns the envelope version the block was encoded for
func (r RawBlock) Version() int { return r.version }

// Len returns the encoded size
func (r RawBlock) Len() int { return len(r.b) }

// Bytes returns a copy of the encoded bytes
func (r RawBlock) Bytes() []byte {
	return bytes.Clone(r.b)
}

// EncodeLevel1Data encodes Level 1 data for a version. The returned bytes are exactly
// what the Level 1 signature covers.
func EncodeLevel1Data(version int, l1 *Level1Data) (RawBlock, error) {
	if _, err := SchemaFor(version); err != nil {
		return RawBlock{}, err
	}
	if l1 == nil {
		return RawBlock{}, errors.New("level 1 data is required")
	}
	if version < 2 && l1.hasValidity() {
		return RawBlock{}, fmt.Errorf("validity fields need U2 or later, got %s", VersionTag(version))
	}

	out, err := borsh.Serialize(*l1)
	if err != nil {
		return RawBlock{}, fmt.Errorf("failed to serialize level 1 data: %w", err)
	}

	if version >= 2 {
		tail, err := borsh.Serialize(validityV2{
			EndOfValidityYear: l1.EndOfValidityYear,
			EndOfValidityDay:  l1.EndOfValidityDay,
			EndOfValidityTime: l1.EndOfValidityTime,
			ValidityDuration:  l1.ValidityDuration,
		})
		if err != nil {
			return RawBlock{}, fmt.Errorf("failed to serialize validity: %w", err)
		}
		out = append(out, tail...)
	}

	return RawBlock{kind: BlockLevel1Data, version: version, b: out}, nil
}

// level2Tail is everything in Level2SignedData after level1Data
type level2Tail struct {
	Level1Signature *[]byte
	Level2Data      *DataBlock
}

// EncodeLevel2SignedData splices an encoded Level 1 block verbatim and appends the
// Level 1 signature and optional Level 2 data. A nil signature is encoded as absent.
// The returned bytes are exactly what the Level 2 signature covers.
func EncodeLevel2SignedData(l1 RawBlock, level1Signature []byte, level2Data *DataBlock) (RawBlock, error) {
	if l1.kind != BlockLevel1Data {
		return RawBlock{}, fmt.Errorf("expected a %s block, got %s", BlockLevel1Data, l1.kind)
	}

	tail, err := borsh.Serialize(level2Tail{
		Level1Signature: BytesPtr(level1Signature),
		Level2Data:      level2Data,
	})
	if err != nil {
		return RawBlock{}, fmt.Errorf("failed to serialize level 2 signed data: %w", err)
	}

	out := make([]byte, 0, len(l1.b)+len(tail))
	out = append(out, l1.b...)
	out = append(out, tail...)
	return RawBlock{kind: BlockLevel2SignedData, version: l1.version, b: out}, nil
}

// EncodeEnvelope writes the version tag, splices an encoded Level 2 block verbatim and
// appends the Level 2 signature. A nil signature is encoded as absent.
func EncodeEnvelope(l2 RawBlock, level2Signature []byte) ([]byte, error) {
	if l2.kind != BlockLevel2SignedData {
		return nil, fmt.Errorf("expected a %s block, got %s", BlockLevel2SignedData, l2.kind)
	}

	head, err := borsh.Serialize(VersionTag(l2.version))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize format: %w", err)
	}
	tail, err := borsh.Serialize(BytesPtr(level2Signature))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize level 2 signature: %w", err)
	}

	out := make([]byte, 0, len(head)+len(l2.b)+len(tail))
	out = append(out, head...)
	out = append(out, l2.b...)
	out = append(out, tail...)
	return out, nil
}

// Encode serializes a whole envelope from its typed value
func Encode(env *Envelope) ([]byte, error) {
	version, err := env.Version()
	if err != nil {
		return nil, err
	}

	l1, err := EncodeLevel1Data(version, &env.Level2SignedData.Level1Data)
	if err != nil {
		return nil, err
	}
	l2, err := EncodeLevel2SignedData(l1, derefBytes(env.Level2SignedData.Level1Signature), env.Level2SignedData.Level2Data)
	if err != nil {
		return nil, err
	}
	return EncodeEnvelope(l2, derefBytes(env.Level2Signature))
}

// derefBytes maps an optional byte string to the nil-means-absent form
func derefBytes(p *[]byte) []byte {
	if p == nil {
		return nil
	}
	if *p == nil {
		return []byte{}
	}
	return *p
}

// Decode parses a whole envelope into its typed value. The result shares no memory
// with b.
func Decode(b []byte) (*Envelope, error) {
	root, version, err := DecodeTree(b)
	if err != nil {
		return nil, err
	}

	l2 := root.Child(FieldLevel2SignedData)
	l1 := l2.Child(FieldLevel1Data)

	env := &Envelope{
		Format: VersionTag(version),
		Level2SignedData: Level2SignedData{
			Level1Data: Level1Data{
				SecurityProviderNum: optUint32(l1.Child(FieldSecurityProviderNum)),
				SecurityProviderIA5: optString(l1.Child(FieldSecurityProviderIA5)),
				KeyID:               optUint32(l1.Child(FieldKeyID)),
				DataSequence:        dataBlocks(l1.Child(FieldDataSequence)),
				Level1KeyAlg:        optString(l1.Child(FieldLevel1KeyAlg)),
				Level2KeyAlg:        optString(l1.Child(FieldLevel2KeyAlg)),
				Level1SigningAlg:    optString(l1.Child(FieldLevel1SigningAlg)),
				Level2SigningAlg:    optString(l1.Child(FieldLevel2SigningAlg)),
				Level2PublicKey:     cloneBytesPtr(BytesPtr(optBytes(l1.Child(FieldLevel2PublicKey)))),
				EndOfValidityYear:   optUint16(l1.Child(FieldEndOfValidityYear)),
				EndOfValidityDay:    optUint16(l1.Child(FieldEndOfValidityDay)),
				EndOfValidityTime:   optUint16(l1.Child(FieldEndOfValidityTime)),
				ValidityDuration:    optUint32(l1.Child(FieldValidityDuration)),
			},
			Level1Signature: cloneBytesPtr(BytesPtr(optBytes(l2.Child(FieldLevel1Signature)))),
		},
		Level2Signature: cloneBytesPtr(BytesPtr(optBytes(root.Child(FieldLevel2Signature)))),
	}

	if block := l2.Child(FieldLevel2Data).Inner(); block != nil {
		d := dataBlock(block)
		env.Level2SignedData.Level2Data = &d
	}
	return env, nil
}

func dataBlocks(seq *Node) []DataBlock {
	if seq == nil || len(seq.Children) == 0 {
		return nil
	}
	out := make([]DataBlock, len(seq.Children))
	for i, c := range seq.Children {
		out[i] = dataBlock(c)
	}
	return out
}

func dataBlock(n *Node) DataBlock {
	return DataBlock{
		Format: n.Child(FieldFormat).Value.(string),
		Data:   bytes.Clone(n.Child(FieldData).Value.([]byte)),
	}
}
