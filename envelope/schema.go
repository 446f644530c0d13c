package envelope

import (
	"fmt"
	"sync"
)

// Kind is the wire shape of a schema type
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindU32
	KindU64
	KindString
	KindBytes
	KindOption
	KindSequence
	KindStruct
)

// String converts Kind to string format
func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindOption:
		return "option"
	case KindSequence:
		return "sequence"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Type describes a Borsh layout. Types are immutable once built.
type Type struct {
	Kind   Kind
	Elem   *Type
	Fields []Field
}

// Field is a named struct member
type Field struct {
	Name string
	Type *Type
}

var (
	TypeU8     = &Type{Kind: KindU8}
	TypeU16    = &Type{Kind: KindU16}
	TypeU32    = &Type{Kind: KindU32}
	TypeU64    = &Type{Kind: KindU64}
	TypeString = &Type{Kind: KindString}
	TypeBytes  = &Type{Kind: KindBytes}
)

// Option wraps elem in a presence byte
func Option(elem *Type) *Type {
	return &Type{Kind: KindOption, Elem: elem}
}

// Sequence is a u32 count followed by that many elem values
func Sequence(elem *Type) *Type {
	return &Type{Kind: KindSequence, Elem: elem}
}

// Struct concatenates fields in order
func Struct(fields ...Field) *Type {
	return &Type{Kind: KindStruct, Fields: fields}
}

// MinSize is the fewest bytes a value of t can occupy
func (t *Type) MinSize() int {
	switch t.Kind {
	case KindU8, KindOption:
		return 1
	case KindU16:
		return 2
	case KindU32, KindString, KindBytes, KindSequence:
		return 4
	case KindU64:
		return 8
	case KindStruct:
		n := 0
		for _, f := range t.Fields {
			n += f.Type.MinSize()
		}
		return n
	}
	return 0
}

// Field names of the envelope layout
const (
	FieldFormat              = "format"
	FieldLevel2SignedData    = "level2SignedData"
	FieldLevel2Signature     = "level2Signature"
	FieldLevel1Data          = "level1Data"
	FieldLevel1Signature     = "level1Signature"
	FieldLevel2Data          = "level2Data"
	FieldSecurityProviderNum = "securityProviderNum"
	FieldSecurityProviderIA5 = "securityProviderIA5"
	FieldKeyID               = "keyId"
	FieldDataSequence        = "dataSequence"
	FieldLevel1KeyAlg        = "level1KeyAlg"
	FieldLevel2KeyAlg        = "level2KeyAlg"
	FieldLevel1SigningAlg    = "level1SigningAlg"
	FieldLevel2SigningAlg    = "level2SigningAlg"
	FieldLevel2PublicKey     = "level2PublicKey"
	FieldEndOfValidityYear   = "endOfValidityYear"
	FieldEndOfValidityDay    = "endOfValidityDay"
	FieldEndOfValidityTime   = "endOfValidityTime"
	FieldValidityDuration    = "validityDuration"
	FieldData                = "data"
)

// schemaBuilders is read-only; built schemas are published into schemas.
var schemaBuilders = map[int]func() *Type{
	1: func() *Type { return envelopeType(1) },
	2: func() *Type { return envelopeType(2) },
}

var schemas sync.Map // int -> *Type

// SchemaFor returns the envelope layout of a version. Layouts are built on first use
// and shared read-only afterwards. Concurrent first uses may each build one, but
// only the first published copy is ever returned.
func SchemaFor(version int) (*Type, error) {
	if s, ok := schemas.Load(version); ok {
		return s.(*Type), nil
	}
	build, ok := schemaBuilders[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, VersionTag(version))
	}
	s, _ := schemas.LoadOrStore(version, build())
	return s.(*Type), nil
}

// SupportedVersions lists the versions with a known layout
func SupportedVersions() []int {
	return []int{1, 2}
}

func dataBlockType() *Type {
	return Struct(
		Field{FieldFormat, TypeString},
		Field{FieldData, TypeBytes},
	)
}

func level1DataType(version int) *Type {
	fields := []Field{
		{FieldSecurityProviderNum, Option(TypeU32)},
		{FieldSecurityProviderIA5, Option(TypeString)},
		{FieldKeyID, Option(TypeU32)},
		{FieldDataSequence, Sequence(dataBlockType())},
		{FieldLevel1KeyAlg, Option(TypeString)},
		{FieldLevel2KeyAlg, Option(TypeString)},
		{FieldLevel1SigningAlg, Option(TypeString)},
		{FieldLevel2SigningAlg, Option(TypeString)},
		{FieldLevel2PublicKey, Option(TypeBytes)},
	}
	if version >= 2 {
		fields = append(fields,
			Field{FieldEndOfValidityYear, Option(TypeU16)},
			Field{FieldEndOfValidityDay, Option(TypeU16)},
			Field{FieldEndOfValidityTime, Option(TypeU16)},
			Field{FieldValidityDuration, Option(TypeU32)},
		)
	}
	return Struct(fields...)
}

func envelopeType(version int) *Type {
	return Struct(
		Field{FieldFormat, TypeString},
		Field{FieldLevel2SignedData, Struct(
			Field{FieldLevel1Data, level1DataType(version)},
			Field{FieldLevel1Signature, Option(TypeBytes)},
			Field{FieldLevel2Data, Option(dataBlockType())},
		)},
		Field{FieldLevel2Signature, Option(TypeBytes)},
	)
}
