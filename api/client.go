package api

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/anchorageoss/railsig/crypto"
	"github.com/anchorageoss/railsig/keys"
)

// HTTPClient interface for dependency injection
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements keys.Directory against a key server
type Client struct {
	HostURI    string
	HTTPClient HTTPClient
	// APIKey is optional; without it requests are not stamped
	APIKey *APIKey
}

var _ keys.Directory = (*Client)(nil)

// NewClient creates a new key server client
func NewClient(hostURI string, httpClient HTTPClient, apiKey *APIKey) *Client {
	return &Client{
		HostURI:    strings.TrimRight(hostURI, "/"),
		HTTPClient: httpClient,
		APIKey:     apiKey,
	}
}

// KeyURL returns the lookup URL for a provider and key id
func (c *Client) KeyURL(provider keys.ProviderRef, keyID uint32) (string, error) {
	var segment string
	switch {
	case provider.Num != nil:
		segment = strconv.FormatUint(uint64(*provider.Num), 10)
	case provider.Code != "":
		segment = url.PathEscape(provider.Code)
	default:
		return "", fmt.Errorf("%w: barcode names no security provider", keys.ErrKeyNotFound)
	}
	return fmt.Sprintf("%s/v1/providers/%s/keys/%d", c.HostURI, segment, keyID), nil
}

// Lookup fetches a Level 1 public key from the key server
func (c *Client) Lookup(ctx context.Context, provider keys.ProviderRef, keyID uint32) ([]byte, error) {
	keyURL, err := c.KeyURL(provider, keyID)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, keyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Add headers
	httpReq.Header.Set("Accept", "application/json")

	if c.APIKey != nil {
		// Generate and add stamp over the request path
		stamp, err := c.generateStamp([]byte(httpReq.URL.RequestURI()))
		if err != nil {
			return nil, fmt.Errorf("failed to generate stamp: %w", err)
		}
		httpReq.Header.Set("X-Stamp", stamp)
	}

	// Send request
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to key server: %w", err)
	}
	defer resp.Body.Close()

	// Check HTTP status
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: provider %s, key id %d", keys.ErrKeyNotFound, provider, keyID)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("key server returned non-OK status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	// Parse response
	var keyResp KeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&keyResp); err != nil {
		return nil, fmt.Errorf("failed to decode key server response: %w", err)
	}
	if keyResp.Error != "" {
		return nil, fmt.Errorf("key server returned error: %s", keyResp.Error)
	}
	if keyResp.KeyID != keyID {
		return nil, fmt.Errorf("key server answered with key id %d, asked for %d", keyResp.KeyID, keyID)
	}

	key, err := keys.DecodeKeyText(keyResp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key server key: %w", err)
	}
	return key, nil
}

// generateStamp creates an API key stamp for the request
func (c *Client) generateStamp(payload []byte) (string, error) {
	// Sign the payload with the private key
	signature, err := crypto.SignWithECDSA(c.APIKey.PrivateKey, crypto.CurveP256.Hash, payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}

	// Create the stamp structure
	stamp := Stamp{
		PublicKey: c.APIKey.PublicKey,
		Signature: hex.EncodeToString(signature),
		Scheme:    StampScheme,
	}

	stampJSON, err := json.Marshal(stamp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stamp: %w", err)
	}

	// Base64URL encode the stamp
	return base64.RawURLEncoding.EncodeToString(stampJSON), nil
}

// NewAPIKey wraps a P-256 private key for stamping
func NewAPIKey(privateKey *ecdsa.PrivateKey) (*APIKey, error) {
	if privateKey == nil {
		return nil, errors.New("API key is required")
	}
	curve, ok := crypto.CurveForElliptic(privateKey.Curve)
	if !ok || curve != crypto.CurveP256 {
		return nil, fmt.Errorf("%w: API keys must be P-256", crypto.ErrUnsupportedAlgorithm)
	}
	compressed := elliptic.MarshalCompressed(privateKey.Curve, privateKey.X, privateKey.Y)
	return &APIKey{
		PublicKey:  hex.EncodeToString(compressed),
		PrivateKey: privateKey,
	}, nil
}
