package envelope

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

const (
	// maxVersionTagLength bounds the leading format string read by ReadVersion
	maxVersionTagLength = 8
	maxVersionDigits    = maxVersionTagLength - 1
)

// Node is one decoded field and the [Start, End) span it occupied in the input
type Node struct {
	Name  string
	Kind  Kind
	Start int
	End   int
	// Present is false only for an absent option
	Present bool
	// Value holds uint64 for integers, string for strings and a sub-slice of the
	// input for bytes. Options, sequences and structs carry Children instead.
	Value    any
	Children []*Node
}

// Child returns the direct child with the given name, or nil
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Path walks nested children by name. It returns nil if any step is missing.
func (n *Node) Path(names ...string) *Node {
	for _, name := range names {
		n = n.Child(name)
	}
	return n
}

// Inner returns the wrapped value of a present option, or nil
func (n *Node) Inner() *Node {
	if n == nil || n.Kind != KindOption || !n.Present || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// Span returns the node's bytes as a capacity-limited sub-slice of input
func (n *Node) Span(input []byte) []byte {
	return input[n.Start:n.End:n.End]
}

// ReadVersion reads only the leading version tag of an envelope
func ReadVersion(b []byte) (int, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("%w: too short for a version tag", ErrMalformedEnvelope)
	}
	n := binary.LittleEndian.Uint32(b)
	if n > maxVersionTagLength || int(n) > len(b)-4 {
		return 0, fmt.Errorf("%w: version tag length %d", ErrMalformedEnvelope, n)
	}
	return ParseVersionTag(string(b[4 : 4+n]))
}

// DecodeTree fully decodes an envelope with the layout of its version, recording the
// byte span of every field
func DecodeTree(b []byte) (*Node, int, error) {
	version, err := ReadVersion(b)
	if err != nil {
		return nil, 0, err
	}
	schema, err := SchemaFor(version)
	if err != nil {
		return nil, 0, err
	}

	root, err := Walk(schema, b)
	if err != nil {
		return nil, 0, err
	}
	return root, version, nil
}

// Walk decodes b as a single value of t. Every length and count is checked against
// the remaining input before it is used, and trailing bytes are rejected.
func Walk(t *Type, b []byte) (*Node, error) {
	d := &decoder{buf: b}
	root, err := d.decode("", "", t)
	if err != nil {
		return nil, err
	}
	if d.off != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedEnvelope, len(b)-d.off)
	}
	return root, nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) take(path string, n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, fmt.Errorf("%w: %s: need %d bytes, %d left", ErrMalformedEnvelope, displayPath(path), n, d.remaining())
	}
	out := d.buf[d.off : d.off+n : d.off+n]
	d.off += n
	return out, nil
}

func (d *decoder) length(path string) (int, error) {
	b, err := d.take(path, 4)
	if err != nil {
		return 0, err
	}
	n := binary.LittleEndian.Uint32(b)
	if uint64(n) > uint64(d.remaining()) {
		return 0, fmt.Errorf("%w: %s: length %d exceeds the %d bytes left", ErrMalformedEnvelope, displayPath(path), n, d.remaining())
	}
	return int(n), nil
}

func (d *decoder) decode(path, name string, t *Type) (*Node, error) {
	node := &Node{Name: name, Kind: t.Kind, Start: d.off, Present: true}

	switch t.Kind {
	case KindU8, KindU16, KindU32, KindU64:
		b, err := d.take(path, t.MinSize())
		if err != nil {
			return nil, err
		}
		node.Value = readUint(b)

	case KindString, KindBytes:
		n, err := d.length(path)
		if err != nil {
			return nil, err
		}
		b, err := d.take(path, n)
		if err != nil {
			return nil, err
		}
		if t.Kind == KindString {
			node.Value = string(b)
		} else {
			node.Value = b
		}

	case KindOption:
		flag, err := d.take(path, 1)
		if err != nil {
			return nil, err
		}
		switch flag[0] {
		case 0:
			node.Present = false
		case 1:
			inner, err := d.decode(path, name, t.Elem)
			if err != nil {
				return nil, err
			}
			node.Children = []*Node{inner}
		default:
			return nil, fmt.Errorf("%w: %s: invalid presence byte 0x%02x", ErrMalformedEnvelope, displayPath(path), flag[0])
		}

	case KindSequence:
		b, err := d.take(path, 4)
		if err != nil {
			return nil, err
		}
		count := uint64(binary.LittleEndian.Uint32(b))
		if minSize := max(uint64(t.Elem.MinSize()), 1); count*minSize > uint64(d.remaining()) {
			return nil, fmt.Errorf("%w: %s: %d elements cannot fit in %d bytes", ErrMalformedEnvelope, displayPath(path), count, d.remaining())
		}
		node.Children = make([]*Node, 0, count)
		for i := 0; i < int(count); i++ {
			index := strconv.Itoa(i)
			elem, err := d.decode(path+"["+index+"]", index, t.Elem)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, elem)
		}

	case KindStruct:
		node.Children = make([]*Node, 0, len(t.Fields))
		for _, f := range t.Fields {
			child, err := d.decode(joinPath(path, f.Name), f.Name, f.Type)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}

	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %v", ErrMalformedEnvelope, displayPath(path), t.Kind)
	}

	node.End = d.off
	return node, nil
}

func readUint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
