package ticket

import (
	"errors"
	"fmt"

	"github.com/anchorageoss/railsig/envelope"
	"github.com/near/borsh-go"
)

// Block is a decoded data block. Exactly one of Body and Dynamic is set when
// decoding succeeded, and only for a matching Format.
type Block struct {
	Format  DataFormat      `json:"format"`
	Tag     string          `json:"tag"`
	Raw     []byte          `json:"-"`
	Body    *Body           `json:"body,omitempty"`
	Dynamic *DynamicContent `json:"dynamic,omitempty"`
	Err     error           `json:"-"`
}

// Decoded returns the typed payload, or nil for unknown or undecodable blocks
func (b *Block) Decoded() any {
	switch {
	case b.Body != nil:
		return b.Body
	case b.Dynamic != nil:
		return b.Dynamic
	default:
		return nil
	}
}

// Layouts used to bounds-check payloads before they reach borsh. Signed integers
// share the width of their unsigned counterparts.
var (
	bodySchema = envelope.Struct(
		envelope.Field{Name: "issuing", Type: envelope.Struct(
			envelope.Field{Name: "securityProviderNum", Type: envelope.TypeU32},
			envelope.Field{Name: "issuerNum", Type: envelope.TypeU32},
			envelope.Field{Name: "issuerName", Type: envelope.TypeString},
			envelope.Field{Name: "issuingYear", Type: envelope.TypeU16},
			envelope.Field{Name: "issuingDay", Type: envelope.TypeU16},
			envelope.Field{Name: "issuingTime", Type: envelope.TypeU16},
			envelope.Field{Name: "specimen", Type: envelope.TypeU8},
			envelope.Field{Name: "currency", Type: envelope.TypeString},
		)},
		envelope.Field{Name: "travelers", Type: envelope.Sequence(envelope.Struct(
			envelope.Field{Name: "firstName", Type: envelope.TypeString},
			envelope.Field{Name: "lastName", Type: envelope.TypeString},
			envelope.Field{Name: "yearOfBirth", Type: envelope.TypeU16},
		))},
		envelope.Field{Name: "documents", Type: envelope.Sequence(envelope.Struct(
			envelope.Field{Name: "kind", Type: envelope.TypeString},
			envelope.Field{Name: "reference", Type: envelope.TypeString},
			envelope.Field{Name: "fromStation", Type: envelope.TypeString},
			envelope.Field{Name: "toStation", Type: envelope.TypeString},
			envelope.Field{Name: "validFromDay", Type: envelope.TypeU16},
			envelope.Field{Name: "validUntilDay", Type: envelope.TypeU16},
			envelope.Field{Name: "price", Type: envelope.TypeU32},
		))},
	)

	dynamicSchema = envelope.Struct(
		envelope.Field{Name: "appId", Type: envelope.TypeString},
		envelope.Field{Name: "timestampDay", Type: envelope.TypeU16},
		envelope.Field{Name: "timestampTime", Type: envelope.TypeU32},
		envelope.Field{Name: "latitude", Type: envelope.TypeU32},
		envelope.Field{Name: "longitude", Type: envelope.TypeU32},
		envelope.Field{Name: "extensions", Type: envelope.Sequence(envelope.Struct(
			envelope.Field{Name: "id", Type: envelope.TypeString},
			envelope.Field{Name: "data", Type: envelope.TypeBytes},
		))},
	)
)

// ErrUnknownFormat is recorded for blocks whose tag has no decoder
var ErrUnknownFormat = errors.New("unknown data format")

// EncodeBody encodes a ticket body as an FCB3 data block
func EncodeBody(body *Body) (envelope.DataBlock, error) {
	data, err := borsh.Serialize(*body)
	if err != nil {
		return envelope.DataBlock{}, fmt.Errorf("failed to serialize ticket body: %w", err)
	}
	return envelope.DataBlock{Format: TagRailTicket, Data: data}, nil
}

// EncodeDynamicContent encodes dynamic content as an FDC1 data block
func EncodeDynamicContent(dc *DynamicContent) (envelope.DataBlock, error) {
	data, err := borsh.Serialize(*dc)
	if err != nil {
		return envelope.DataBlock{}, fmt.Errorf("failed to serialize dynamic content: %w", err)
	}
	return envelope.DataBlock{Format: TagDynamicContent, Data: data}, nil
}

// DecodeBody decodes a ticket body
func DecodeBody(data []byte) (*Body, error) {
	if _, err := envelope.Walk(bodySchema, data); err != nil {
		return nil, fmt.Errorf("failed to decode ticket body: %w", err)
	}
	var body Body
	if err := borsh.Deserialize(&body, data); err != nil {
		return nil, fmt.Errorf("failed to deserialize ticket body: %w", err)
	}
	return &body, nil
}

// DecodeDynamicContent decodes dynamic content
func DecodeDynamicContent(data []byte) (*DynamicContent, error) {
	if _, err := envelope.Walk(dynamicSchema, data); err != nil {
		return nil, fmt.Errorf("failed to decode dynamic content: %w", err)
	}
	var dc DynamicContent
	if err := borsh.Deserialize(&dc, data); err != nil {
		return nil, fmt.Errorf("failed to deserialize dynamic content: %w", err)
	}
	return &dc, nil
}

// DecodeBlock resolves a data block's format and attempts to decode it. Failures
// never propagate: the block keeps its raw bytes and the error is kept in Err.
func DecodeBlock(d envelope.DataBlock) Block {
	block := Block{Format: ParseDataFormat(d.Format), Tag: d.Format, Raw: d.Data}

	switch block.Format {
	case FormatRailTicket:
		block.Body, block.Err = DecodeBody(d.Data)
	case FormatDynamicContent:
		block.Dynamic, block.Err = DecodeDynamicContent(d.Data)
	default:
		block.Err = fmt.Errorf("%w: %q", ErrUnknownFormat, d.Format)
	}
	return block
}

// DecodeBlocks decodes every block of a data sequence
func DecodeBlocks(blocks []envelope.DataBlock) []Block {
	out := make([]Block, len(blocks))
	for i, d := range blocks {
		out[i] = DecodeBlock(d)
	}
	return out
}
