// Package verify provides end-to-end verification of two-level signed barcodes.
//
// The verification process validates:
//   - envelope structure and version
//   - the Level 1 signature over the exact Level 1 data bytes
//   - the Level 2 signature over the exact Level 2 signed data bytes, when present
//
// # Verification Flow
//
// Call Verify with the barcode payload. The Level 1 key comes from the request or,
// when the request has none, from the key directory:
//
//	verifyService := verify.NewService(&keys.FileDirectory{Path: "keys.json"})
//	result, err := verifyService.Verify(ctx, &verify.VerifyRequest{
//		Barcode: barcodeBytes,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if !result.Valid {
//		log.Printf("Verification failed: %s", result.Level1.Error)
//	}
//
// # Detailed Results
//
// VerifyResult reports each level separately. A static barcode has no Level 2
// signature; it verifies with Level2.Present set to false.
package verify

import (
	"github.com/anchorageoss/railsig/envelope"
	"github.com/anchorageoss/railsig/ticket"
)

// VerifyRequest represents the parameters for verification
type VerifyRequest struct {
	Barcode []byte
	// Level1PublicKey skips the directory lookup. It may be a raw point, an SPKI
	// or a certificate.
	Level1PublicKey []byte
}

// VerifyResult represents the result of verification
type VerifyResult struct {
	Valid   bool         `json:"valid"`
	Version int          `json:"version"`
	Level1  LevelResult  `json:"level1"`
	Level2  LevelResult  `json:"level2"`
	Regions []RegionInfo `json:"regions"`
	// Provider and KeyID identify the Level 1 key
	Provider string                    `json:"provider"`
	KeyID    *uint32                   `json:"keyId,omitempty"`
	Blocks   []ticket.Block            `json:"blocks,omitempty"`
	Metadata envelope.SecurityMetadata `json:"-"`
}

// LevelResult is the verification of one signature level
type LevelResult struct {
	Present      bool   `json:"present"`
	Valid        bool   `json:"valid"`
	Algorithm    string `json:"algorithm,omitempty"`
	Curve        string `json:"curve,omitempty"`
	PublicKeyHex string `json:"publicKey,omitempty"`
	SignatureHex string `json:"signature,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RegionInfo locates a signed region in the barcode
type RegionInfo struct {
	Name   string `json:"name"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	SHA256 string `json:"sha256"`
}
