// Package ticket provides the payload blocks carried inside a barcode envelope:
// the rail ticket body and the refreshable dynamic content.
//
// Data blocks are tagged with a format string. The tag is parsed once into a
// DataFormat and decoding dispatches on it:
//
//	block := ticket.DecodeBlock(dataBlock)
//	switch block.Format {
//	case ticket.FormatRailTicket:
//		fmt.Println(block.Body.Issuing.IssuerName)
//	case ticket.FormatDynamicContent:
//		fmt.Println(block.Dynamic.AppID)
//	}
//
// Decoding is speculative. A block that fails to decode keeps its raw bytes and
// records the error in Block.Err.
package ticket

import (
	"fmt"
	"strings"
)

// DataFormat is the parsed format tag of a data block
type DataFormat uint8

const (
	FormatUnknown DataFormat = iota
	FormatRailTicket
	FormatDynamicContent
)

// Format tags written by this package
const (
	TagRailTicket     = "FCB3"
	TagDynamicContent = "FDC1"
)

// String converts DataFormat to string format
func (f DataFormat) String() string {
	switch f {
	case FormatRailTicket:
		return "RailTicket"
	case FormatDynamicContent:
		return "DynamicContent"
	default:
		return "Unknown"
	}
}

// MarshalJSON converts DataFormat to JSON string format
func (f DataFormat) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", f.String())), nil
}

// ParseDataFormat maps a data block tag to its format. FCB1 to FCB3 are rail
// tickets, FDC1 is dynamic content, anything else is unknown.
func ParseDataFormat(tag string) DataFormat {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "FCB1", "FCB2", "FCB3":
		return FormatRailTicket
	case "FDC1":
		return FormatDynamicContent
	default:
		return FormatUnknown
	}
}

// IssuingDetail describes who issued the ticket and when
type IssuingDetail struct {
	SecurityProviderNum uint32 `borsh:"security_provider_num" json:"securityProviderNum"`
	IssuerNum           uint32 `borsh:"issuer_num" json:"issuerNum"`
	IssuerName          string `borsh:"issuer_name" json:"issuerName"`
	IssuingYear         uint16 `borsh:"issuing_year" json:"issuingYear"`
	IssuingDay          uint16 `borsh:"issuing_day" json:"issuingDay"`
	// IssuingTime is minutes after midnight UTC
	IssuingTime uint16 `borsh:"issuing_time" json:"issuingTime"`
	// Specimen is 1 for test tickets
	Specimen uint8  `borsh:"specimen" json:"specimen"`
	Currency string `borsh:"currency" json:"currency"`
}

// Traveler is a passenger named on the ticket
type Traveler struct {
	FirstName   string `borsh:"first_name" json:"firstName"`
	LastName    string `borsh:"last_name" json:"lastName"`
	YearOfBirth uint16 `borsh:"year_of_birth" json:"yearOfBirth,omitempty"`
}

// Document is one transport document such as an open ticket or a pass
type Document struct {
	Kind          string `borsh:"kind" json:"kind"`
	Reference     string `borsh:"reference" json:"reference"`
	FromStation   string `borsh:"from_station" json:"fromStation,omitempty"`
	ToStation     string `borsh:"to_station" json:"toStation,omitempty"`
	ValidFromDay  uint16 `borsh:"valid_from_day" json:"validFromDay"`
	ValidUntilDay uint16 `borsh:"valid_until_day" json:"validUntilDay"`
	// Price is in the smallest currency unit
	Price uint32 `borsh:"price" json:"price"`
}

// Body is the rail ticket carried in the Level 1 data sequence
type Body struct {
	Issuing   IssuingDetail `borsh:"issuing" json:"issuing"`
	Travelers []Traveler    `borsh:"travelers" json:"travelers"`
	Documents []Document    `borsh:"documents" json:"documents"`
}

// Extension is an issuer-specific payload inside dynamic content
type Extension struct {
	ID   string `borsh:"id" json:"id"`
	Data []byte `borsh:"data" json:"data"`
}

// DynamicContent is the refreshable Level 2 payload
type DynamicContent struct {
	AppID         string `borsh:"app_id" json:"appId"`
	TimestampDay  uint16 `borsh:"timestamp_day" json:"timestampDay"`
	TimestampTime uint32 `borsh:"timestamp_time" json:"timestampTime"`
	// Latitude and Longitude are in millionths of a degree
	Latitude   int32       `borsh:"latitude" json:"latitude"`
	Longitude  int32       `borsh:"longitude" json:"longitude"`
	Extensions []Extension `borsh:"extensions" json:"extensions,omitempty"`
}
