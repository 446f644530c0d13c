package envelope

import (
	"fmt"
)

// Region is a signed byte range of the input buffer
type Region struct {
	Start int
	End   int
	// Bytes is input[Start:End], never a re-encoding
	Bytes []byte
}

// SecurityMetadata is the flattened security header of an envelope. Absent optional
// fields are nil. A present but empty byte string is a non-nil empty slice.
type SecurityMetadata struct {
	Version             int
	SecurityProviderNum *uint32
	SecurityProviderIA5 *string
	KeyID               *uint32
	Level1KeyAlg        *string
	Level2KeyAlg        *string
	Level1SigningAlg    *string
	Level2SigningAlg    *string
	Level2PublicKey     []byte
	Level1Signature     []byte
	Level2Signature     []byte
}

// SignedRegions is the result of Extract
type SignedRegions struct {
	// Level1Data is covered by the Level 1 signature
	Level1Data Region
	// Level2SignedData is covered by the Level 2 signature
	Level2SignedData Region
	Metadata         SecurityMetadata
	// Tree is the full decode with spans for every field
	Tree *Node
}

// Extract decodes an envelope and returns its two signed regions and security
// metadata. Regions and byte fields are sub-slices of b; b must not be modified
// while they are in use.
func Extract(b []byte) (*SignedRegions, error) {
	root, version, err := DecodeTree(b)
	if err != nil {
		return nil, err
	}

	l2 := root.Child(FieldLevel2SignedData)
	l1 := l2.Child(FieldLevel1Data)
	if l1 == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedEnvelope, FieldLevel1Data)
	}

	regions := &SignedRegions{
		Level1Data:       region(l1, b),
		Level2SignedData: region(l2, b),
		Tree:             root,
		Metadata: SecurityMetadata{
			Version:             version,
			SecurityProviderNum: optUint32(l1.Child(FieldSecurityProviderNum)),
			SecurityProviderIA5: optString(l1.Child(FieldSecurityProviderIA5)),
			KeyID:               optUint32(l1.Child(FieldKeyID)),
			Level1KeyAlg:        optString(l1.Child(FieldLevel1KeyAlg)),
			Level2KeyAlg:        optString(l1.Child(FieldLevel2KeyAlg)),
			Level1SigningAlg:    optString(l1.Child(FieldLevel1SigningAlg)),
			Level2SigningAlg:    optString(l1.Child(FieldLevel2SigningAlg)),
			Level2PublicKey:     optBytes(l1.Child(FieldLevel2PublicKey)),
			Level1Signature:     optBytes(l2.Child(FieldLevel1Signature)),
			Level2Signature:     optBytes(root.Child(FieldLevel2Signature)),
		},
	}
	return regions, nil
}

func region(n *Node, input []byte) Region {
	return Region{Start: n.Start, End: n.End, Bytes: n.Span(input)}
}

func optUint32(n *Node) *uint32 {
	inner := n.Inner()
	if inner == nil {
		return nil
	}
	v := uint32(inner.Value.(uint64))
	return &v
}

func optUint16(n *Node) *uint16 {
	inner := n.Inner()
	if inner == nil {
		return nil
	}
	v := uint16(inner.Value.(uint64))
	return &v
}

func optString(n *Node) *string {
	inner := n.Inner()
	if inner == nil {
		return nil
	}
	v := inner.Value.(string)
	return &v
}

// optBytes returns the sub-slice of a present option, which is non-nil even when
// empty, or nil when absent
func optBytes(n *Node) []byte {
	inner := n.Inner()
	if inner == nil {
		return nil
	}
	b := inner.Value.([]byte)
	if b == nil {
		b = []byte{}
	}
	return b
}
