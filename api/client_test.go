package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/anchorageoss/railsig/crypto"
	"github.com/anchorageoss/railsig/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const level1PublicKey = "02f739f8c77b32f4d5f13265861febd76e7a9c61a1140d296b8c16302508870316"

// mockHTTPClient returns a canned response and records the request
type mockHTTPClient struct {
	status  int
	body    string
	err     error
	request *http.Request
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.request = req
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func keyResponse(t *testing.T, resp KeyResponse) string {
	t.Helper()
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(b)
}

func TestNewClient(t *testing.T) {
	httpClient := &http.Client{}
	client := NewClient("https://keys.example.org/", httpClient, nil)
	require.NotNil(t, client)
	require.Equal(t, "https://keys.example.org", client.HostURI)
	require.Nil(t, client.APIKey)
}

func TestKeyURL(t *testing.T) {
	client := NewClient("https://keys.example.org", nil, nil)
	num := uint32(1080)

	tests := []struct {
		name     string
		provider keys.ProviderRef
		want     string
	}{
		{"number", keys.ProviderRef{Num: &num, Code: "SBB"}, "https://keys.example.org/v1/providers/1080/keys/7"},
		{"code", keys.ProviderRef{Code: "SBB"}, "https://keys.example.org/v1/providers/SBB/keys/7"},
		{"escaped code", keys.ProviderRef{Code: "a/b"}, "https://keys.example.org/v1/providers/a%2Fb/keys/7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.KeyURL(tt.provider, 7)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := client.KeyURL(keys.ProviderRef{}, 7)
	assert.ErrorIs(t, err, keys.ErrKeyNotFound)
}

func TestLookup(t *testing.T) {
	num := uint32(1080)
	provider := keys.ProviderRef{Num: &num}
	want, _ := hex.DecodeString(level1PublicKey)

	t.Run("found", func(t *testing.T) {
		httpClient := &mockHTTPClient{status: http.StatusOK, body: keyResponse(t, KeyResponse{ProviderNum: &num, KeyID: 7, PublicKey: level1PublicKey})}
		client := NewClient("https://keys.example.org", httpClient, nil)

		key, err := client.Lookup(context.Background(), provider, 7)
		require.NoError(t, err)
		assert.Equal(t, want, key)

		require.NotNil(t, httpClient.request)
		assert.Equal(t, http.MethodGet, httpClient.request.Method)
		assert.Equal(t, "/v1/providers/1080/keys/7", httpClient.request.URL.Path)
		assert.Empty(t, httpClient.request.Header.Get("X-Stamp"))
	})

	t.Run("not found", func(t *testing.T) {
		client := NewClient("https://keys.example.org", &mockHTTPClient{status: http.StatusNotFound}, nil)
		_, err := client.Lookup(context.Background(), provider, 7)
		require.Error(t, err)
		assert.ErrorIs(t, err, keys.ErrKeyNotFound)
	})

	t.Run("server error", func(t *testing.T) {
		client := NewClient("https://keys.example.org", &mockHTTPClient{status: http.StatusInternalServerError, body: "boom"}, nil)
		_, err := client.Lookup(context.Background(), provider, 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-OK status: 500, body: boom")
	})

	t.Run("transport error", func(t *testing.T) {
		client := NewClient("https://keys.example.org", &mockHTTPClient{err: errors.New("connection refused")}, nil)
		_, err := client.Lookup(context.Background(), provider, 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send request to key server")
	})

	t.Run("error in body", func(t *testing.T) {
		client := NewClient("https://keys.example.org", &mockHTTPClient{status: http.StatusOK, body: `{"keyId":7,"error":"revoked"}`}, nil)
		_, err := client.Lookup(context.Background(), provider, 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "revoked")
	})

	t.Run("wrong key id", func(t *testing.T) {
		httpClient := &mockHTTPClient{status: http.StatusOK, body: keyResponse(t, KeyResponse{KeyID: 8, PublicKey: level1PublicKey})}
		client := NewClient("https://keys.example.org", httpClient, nil)
		_, err := client.Lookup(context.Background(), provider, 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key id 8")
	})

	t.Run("invalid json", func(t *testing.T) {
		client := NewClient("https://keys.example.org", &mockHTTPClient{status: http.StatusOK, body: `{`}, nil)
		_, err := client.Lookup(context.Background(), provider, 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode key server response")
	})

	t.Run("invalid key text", func(t *testing.T) {
		httpClient := &mockHTTPClient{status: http.StatusOK, body: keyResponse(t, KeyResponse{KeyID: 7, PublicKey: "!!"})}
		client := NewClient("https://keys.example.org", httpClient, nil)
		_, err := client.Lookup(context.Background(), provider, 7)
		require.Error(t, err)
	})
}

func TestLookupStamped(t *testing.T) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	apiKey, err := NewAPIKey(privKey)
	require.NoError(t, err)

	num := uint32(1080)
	httpClient := &mockHTTPClient{status: http.StatusOK, body: keyResponse(t, KeyResponse{KeyID: 7, PublicKey: level1PublicKey})}
	client := NewClient("https://keys.example.org", httpClient, apiKey)

	_, err = client.Lookup(context.Background(), keys.ProviderRef{Num: &num}, 7)
	require.NoError(t, err)

	header := httpClient.request.Header.Get("X-Stamp")
	require.NotEmpty(t, header)

	decoded, err := base64.RawURLEncoding.DecodeString(header)
	require.NoError(t, err)
	var stamp Stamp
	require.NoError(t, json.Unmarshal(decoded, &stamp))
	assert.Equal(t, apiKey.PublicKey, stamp.PublicKey)
	assert.Equal(t, StampScheme, stamp.Scheme)

	der, err := hex.DecodeString(stamp.Signature)
	require.NoError(t, err)
	raw, err := crypto.DERToRaw(der, crypto.CurveP256.ComponentLength)
	require.NoError(t, err)
	assert.True(t, crypto.VerifyECDSASignature(&privKey.PublicKey, crypto.CurveP256.Hash, []byte("/v1/providers/1080/keys/7"), raw))
}

func TestNewAPIKey(t *testing.T) {
	t.Run("P-256", func(t *testing.T) {
		privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		apiKey, err := NewAPIKey(privKey)
		require.NoError(t, err)
		assert.Len(t, apiKey.PublicKey, 66)
	})

	t.Run("other curve", func(t *testing.T) {
		privKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)
		_, err = NewAPIKey(privKey)
		assert.ErrorIs(t, err, crypto.ErrUnsupportedAlgorithm)
	})

	t.Run("nil", func(t *testing.T) {
		_, err := NewAPIKey(nil)
		assert.Error(t, err)
	})
}
