package ticket

import (
	"encoding/json"
	"testing"

	"github.com/anchorageoss/railsig/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBody() *Body {
	return &Body{
		Issuing: IssuingDetail{
			SecurityProviderNum: 1080,
			IssuerNum:           1080,
			IssuerName:          "Test Railway",
			IssuingYear:         2026,
			IssuingDay:          292,
			IssuingTime:         615,
			Specimen:            1,
			Currency:            "EUR",
		},
		Travelers: []Traveler{{FirstName: "Ada", LastName: "Lovelace", YearOfBirth: 1815}},
		Documents: []Document{{
			Kind:          "openTicket",
			Reference:     "ABC123",
			FromStation:   "8000105",
			ToStation:     "8000261",
			ValidFromDay:  292,
			ValidUntilDay: 293,
			Price:         4990,
		}},
	}
}

func sampleDynamicContent() *DynamicContent {
	return &DynamicContent{
		AppID:         "railsig-test",
		TimestampDay:  292,
		TimestampTime: 36900,
		Latitude:      50107149,
		Longitude:     -8663785,
		Extensions:    []Extension{{ID: "_1080.ID1", Data: []byte{0x01, 0x02}}},
	}
}

func TestParseDataFormat(t *testing.T) {
	tests := []struct {
		tag  string
		want DataFormat
	}{
		{"FCB1", FormatRailTicket},
		{"FCB2", FormatRailTicket},
		{"FCB3", FormatRailTicket},
		{"fcb3", FormatRailTicket},
		{"FDC1", FormatDynamicContent},
		{"FCB4", FormatUnknown},
		{"_5101.ID1", FormatUnknown},
		{"", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDataFormat(tt.tag))
		})
	}
}

func TestBodyRoundTrip(t *testing.T) {
	block, err := EncodeBody(sampleBody())
	require.NoError(t, err)
	assert.Equal(t, TagRailTicket, block.Format)

	decoded := DecodeBlock(block)
	require.NoError(t, decoded.Err)
	assert.Equal(t, FormatRailTicket, decoded.Format)
	assert.Equal(t, sampleBody(), decoded.Body)
	assert.Nil(t, decoded.Dynamic)
	assert.Equal(t, sampleBody(), decoded.Decoded())
}

func TestDynamicContentRoundTrip(t *testing.T) {
	block, err := EncodeDynamicContent(sampleDynamicContent())
	require.NoError(t, err)
	assert.Equal(t, TagDynamicContent, block.Format)

	decoded := DecodeBlock(block)
	require.NoError(t, decoded.Err)
	assert.Equal(t, FormatDynamicContent, decoded.Format)
	assert.Equal(t, sampleDynamicContent(), decoded.Dynamic)
}

func TestDecodeBlockDegrades(t *testing.T) {
	t.Run("unknown format keeps raw bytes", func(t *testing.T) {
		d := envelope.DataBlock{Format: "_5101.ID1", Data: []byte{0xde, 0xad}}
		block := DecodeBlock(d)
		assert.Equal(t, FormatUnknown, block.Format)
		assert.Equal(t, d.Data, block.Raw)
		assert.Nil(t, block.Decoded())
		assert.ErrorIs(t, block.Err, ErrUnknownFormat)
	})

	t.Run("truncated body", func(t *testing.T) {
		good, err := EncodeBody(sampleBody())
		require.NoError(t, err)

		d := envelope.DataBlock{Format: "FCB3", Data: good.Data[:len(good.Data)-3]}
		block := DecodeBlock(d)
		assert.Equal(t, FormatRailTicket, block.Format)
		assert.Nil(t, block.Decoded())
		assert.Equal(t, d.Data, block.Raw)
		assert.ErrorIs(t, block.Err, envelope.ErrMalformedEnvelope)
	})

	t.Run("huge length prefix", func(t *testing.T) {
		// issuer numbers, then an issuer name claiming 4 GiB
		data := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}
		block := DecodeBlock(envelope.DataBlock{Format: "FCB3", Data: data})
		assert.Nil(t, block.Body)
		assert.Error(t, block.Err)
	})

	t.Run("dynamic content as rail ticket", func(t *testing.T) {
		dc, err := EncodeDynamicContent(sampleDynamicContent())
		require.NoError(t, err)

		block := DecodeBlock(envelope.DataBlock{Format: "FCB3", Data: dc.Data})
		assert.Nil(t, block.Body)
		assert.Error(t, block.Err)
	})
}

func TestDecodeBlocks(t *testing.T) {
	body, err := EncodeBody(sampleBody())
	require.NoError(t, err)

	blocks := DecodeBlocks([]envelope.DataBlock{body, {Format: "XYZ", Data: []byte{1}}})
	require.Len(t, blocks, 2)
	assert.NotNil(t, blocks[0].Body)
	assert.Equal(t, FormatUnknown, blocks[1].Format)
}

func TestDataFormatJSON(t *testing.T) {
	b, err := json.Marshal(FormatDynamicContent)
	require.NoError(t, err)
	assert.Equal(t, `"DynamicContent"`, string(b))
}
