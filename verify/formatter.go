package verify

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/anchorageoss/railsig/envelope"
	"github.com/anchorageoss/railsig/ticket"
)

// Formatter formats verification results and envelope metadata for display
type Formatter struct{}

// NewFormatter creates a new formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatMetadata formats the security header of a barcode
func (f *Formatter) FormatMetadata(md envelope.SecurityMetadata, indent string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n%sSecurity header (%s):\n", indent, envelope.VersionTag(md.Version)))

	if md.SecurityProviderNum != nil {
		sb.WriteString(fmt.Sprintf("%s  Provider number: %d\n", indent, *md.SecurityProviderNum))
	}
	if md.SecurityProviderIA5 != nil {
		sb.WriteString(fmt.Sprintf("%s  Provider code: %s\n", indent, *md.SecurityProviderIA5))
	}
	if md.KeyID != nil {
		sb.WriteString(fmt.Sprintf("%s  Key ID: %d\n", indent, *md.KeyID))
	}

	algs := []struct {
		label string
		value *string
	}{
		{"Level 1 key algorithm", md.Level1KeyAlg},
		{"Level 1 signing algorithm", md.Level1SigningAlg},
		{"Level 2 key algorithm", md.Level2KeyAlg},
		{"Level 2 signing algorithm", md.Level2SigningAlg},
	}
	for _, a := range algs {
		if a.value != nil {
			sb.WriteString(fmt.Sprintf("%s  %s: %s\n", indent, a.label, *a.value))
		}
	}

	if md.Level2PublicKey != nil {
		sb.WriteString(fmt.Sprintf("%s  Level 2 public key: %s\n", indent, hex.EncodeToString(md.Level2PublicKey)))
	}
	sb.WriteString(fmt.Sprintf("%s  Level 1 signature: %s\n", indent, signatureText(md.Level1Signature)))
	sb.WriteString(fmt.Sprintf("%s  Level 2 signature: %s\n", indent, signatureText(md.Level2Signature)))

	return sb.String()
}

func signatureText(sig []byte) string {
	switch {
	case sig == nil:
		return "(absent)"
	case len(sig) == 0:
		return "(empty)"
	default:
		return fmt.Sprintf("%s (%d bytes)", hex.EncodeToString(sig), len(sig))
	}
}

// FormatBlock formats one decoded data block
func (f *Formatter) FormatBlock(block ticket.Block, indent string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%sBlock %s (%s, %d bytes)\n", indent, block.Tag, block.Format, len(block.Raw)))

	switch {
	case block.Body != nil:
		is := block.Body.Issuing
		sb.WriteString(fmt.Sprintf("%s  Issuer: %s (%d)\n", indent, is.IssuerName, is.IssuerNum))
		sb.WriteString(fmt.Sprintf("%s  Issued: %d day %d, minute %d\n", indent, is.IssuingYear, is.IssuingDay, is.IssuingTime))
		if is.Specimen != 0 {
			sb.WriteString(fmt.Sprintf("%s  SPECIMEN\n", indent))
		}
		for _, tr := range block.Body.Travelers {
			sb.WriteString(fmt.Sprintf("%s  Traveler: %s %s\n", indent, tr.FirstName, tr.LastName))
		}
		for _, doc := range block.Body.Documents {
			sb.WriteString(fmt.Sprintf("%s  Document %s %s: %s -> %s, %d %s\n", indent, doc.Kind, doc.Reference, doc.FromStation, doc.ToStation, doc.Price, is.Currency))
		}
	case block.Dynamic != nil:
		dc := block.Dynamic
		sb.WriteString(fmt.Sprintf("%s  App: %s\n", indent, dc.AppID))
		sb.WriteString(fmt.Sprintf("%s  Timestamp: day %d, second %d\n", indent, dc.TimestampDay, dc.TimestampTime))
		if dc.Latitude != 0 || dc.Longitude != 0 {
			sb.WriteString(fmt.Sprintf("%s  Position: %.6f, %.6f\n", indent, float64(dc.Latitude)/1e6, float64(dc.Longitude)/1e6))
		}
		for _, ext := range dc.Extensions {
			sb.WriteString(fmt.Sprintf("%s  Extension %s: %s\n", indent, ext.ID, hex.EncodeToString(ext.Data)))
		}
	default:
		if block.Err != nil {
			sb.WriteString(fmt.Sprintf("%s  Not decoded: %v\n", indent, block.Err))
		}
		sb.WriteString(fmt.Sprintf("%s  Raw: %s\n", indent, hex.EncodeToString(block.Raw)))
	}

	return sb.String()
}

// FormatLevel formats the result of one signature level
func (f *Formatter) FormatLevel(name string, level LevelResult) string {
	if !level.Present {
		return fmt.Sprintf("%s: not signed\n", name)
	}
	status := "✓ valid"
	if !level.Valid {
		status = "✗ INVALID"
	}
	curve := ""
	if level.Curve != "" {
		curve = ", " + level.Curve
	}
	return fmt.Sprintf("%s: %s (%s%s)\n", name, status, level.Algorithm, curve)
}

// FormatVerificationResult formats a verification result for display
func (f *Formatter) FormatVerificationResult(result *VerifyResult) map[string]interface{} {
	output := map[string]interface{}{
		"valid":    result.Valid,
		"version":  envelope.VersionTag(result.Version),
		"provider": result.Provider,
		"level1":   f.FormatLevelJSON(result.Level1),
		"level2":   f.FormatLevelJSON(result.Level2),
	}

	// Add optional fields if present
	if result.KeyID != nil {
		output["keyId"] = *result.KeyID
	}

	if len(result.Regions) > 0 {
		regions := make([]map[string]interface{}, len(result.Regions))
		for i, r := range result.Regions {
			regions[i] = map[string]interface{}{
				"name":   r.Name,
				"start":  r.Start,
				"end":    r.End,
				"sha256": r.SHA256,
			}
		}
		output["regions"] = regions
	}

	if len(result.Blocks) > 0 {
		output["blocks"] = f.FormatBlocksJSON(result.Blocks)
	}

	return output
}

// FormatLevelJSON formats one level result for JSON output
func (f *Formatter) FormatLevelJSON(level LevelResult) map[string]interface{} {
	output := map[string]interface{}{
		"present": level.Present,
	}
	if !level.Present {
		return output
	}
	output["valid"] = level.Valid
	output["algorithm"] = level.Algorithm
	output["signature"] = level.SignatureHex
	if level.Curve != "" {
		output["curve"] = level.Curve
	}
	if level.PublicKeyHex != "" {
		output["publicKey"] = level.PublicKeyHex
	}
	if level.Error != "" {
		output["error"] = level.Error
	}
	return output
}

// FormatBlocksJSON formats decoded data blocks for JSON output
func (f *Formatter) FormatBlocksJSON(blocks []ticket.Block) []map[string]interface{} {
	result := make([]map[string]interface{}, len(blocks))
	for i, b := range blocks {
		entry := map[string]interface{}{
			"format": b.Format.String(),
			"tag":    b.Tag,
		}
		if decoded := b.Decoded(); decoded != nil {
			entry["content"] = decoded
		} else {
			entry["raw"] = hex.EncodeToString(b.Raw)
			if b.Err != nil {
				entry["error"] = b.Err.Error()
			}
		}
		result[i] = entry
	}
	return result
}

// FormatMetadataJSON formats the security header for JSON output
func (f *Formatter) FormatMetadataJSON(md envelope.SecurityMetadata) map[string]interface{} {
	output := map[string]interface{}{
		"version": envelope.VersionTag(md.Version),
	}
	setOpt := func(key string, v *string) {
		if v != nil {
			output[key] = *v
		}
	}
	if md.SecurityProviderNum != nil {
		output["securityProviderNum"] = *md.SecurityProviderNum
	}
	setOpt("securityProviderIA5", md.SecurityProviderIA5)
	if md.KeyID != nil {
		output["keyId"] = *md.KeyID
	}
	setOpt("level1KeyAlg", md.Level1KeyAlg)
	setOpt("level2KeyAlg", md.Level2KeyAlg)
	setOpt("level1SigningAlg", md.Level1SigningAlg)
	setOpt("level2SigningAlg", md.Level2SigningAlg)
	if md.Level2PublicKey != nil {
		output["level2PublicKey"] = hex.EncodeToString(md.Level2PublicKey)
	}
	if md.Level1Signature != nil {
		output["level1Signature"] = hex.EncodeToString(md.Level1Signature)
	}
	if md.Level2Signature != nil {
		output["level2Signature"] = hex.EncodeToString(md.Level2Signature)
	}
	return output
}
