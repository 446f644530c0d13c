// Package api provides a client for a Level 1 key server.
//
// The client handles:
// - Key lookup by security provider and key id
// - Optional request stamping with an ECDSA P-256 API key
// - Mapping of server responses onto keys.ErrKeyNotFound
//
// # Usage
//
// Create a client and use it wherever a keys.Directory is expected:
//
//	client := api.NewClient("https://keys.example.org", &http.Client{}, nil)
//	service := verify.NewService(client)
//
// Lookups may also be made directly:
//
//	key, err := client.Lookup(ctx, keys.ProviderRef{Num: &num}, 7)
//	if err != nil {
//		log.Fatal(err)
//	}
package api

import (
	"crypto/ecdsa"
)

// APIKey authenticates requests to the key server
type APIKey struct {
	// PublicKey is the hex-encoded compressed public key sent with each stamp
	PublicKey  string
	PrivateKey *ecdsa.PrivateKey
}

// KeyResponse is the key server's answer to a lookup
type KeyResponse struct {
	ProviderNum  *uint32 `json:"providerNum,omitempty"`
	ProviderCode string  `json:"providerCode,omitempty"`
	KeyID        uint32  `json:"keyId"`
	// PublicKey is hex, base64 or PEM
	PublicKey string `json:"publicKey"`
	Error     string `json:"error,omitempty"`
}

// Stamp is the X-Stamp header content, base64url-encoded JSON
type Stamp struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	Scheme    string `json:"scheme"`
}

// StampScheme names the stamp signature algorithm
const StampScheme = "SIGNATURE_SCHEME_ECDSA_P256_SHA256"
