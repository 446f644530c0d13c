package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// ErrKeyNotFound is returned when a directory holds no key for a provider and key id
var ErrKeyNotFound = errors.New("key not found")

// ProviderRef identifies a security provider by number, by code, or both
type ProviderRef struct {
	Num  *uint32
	Code string
}

// String renders the provider for logs and errors
func (p ProviderRef) String() string {
	switch {
	case p.Num != nil && p.Code != "":
		return fmt.Sprintf("%d/%s", *p.Num, p.Code)
	case p.Num != nil:
		return strconv.FormatUint(uint64(*p.Num), 10)
	case p.Code != "":
		return p.Code
	default:
		return "<none>"
	}
}

// Directory resolves Level 1 public keys
type Directory interface {
	// Lookup returns the key bytes in any format ExtractECPublicKeyPoint accepts,
	// or an error wrapping ErrKeyNotFound.
	Lookup(ctx context.Context, provider ProviderRef, keyID uint32) ([]byte, error)
}

// Entry is one key of a directory file
type Entry struct {
	ProviderNum  *uint32 `json:"providerNum,omitempty"`
	ProviderCode string  `json:"providerCode,omitempty"`
	KeyID        uint32  `json:"keyId"`
	// PublicKey is hex, base64 or PEM
	PublicKey string `json:"publicKey"`
}

type memoryEntry struct {
	provider ProviderRef
	keyID    uint32
	key      []byte
}

// MemoryDirectory is a Directory held in memory. It is safe for concurrent use.
type MemoryDirectory struct {
	mu      sync.RWMutex
	entries []memoryEntry
}

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{}
}

// Add registers a key. Later additions win over earlier ones for the same provider and key id.
func (d *MemoryDirectory) Add(provider ProviderRef, keyID uint32, key []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, memoryEntry{
		provider: provider,
		keyID:    keyID,
		key:      append([]byte(nil), key...),
	})
}

// Lookup matches on provider number when the reference has one, otherwise on code
func (d *MemoryDirectory) Lookup(ctx context.Context, provider ProviderRef, keyID uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := len(d.entries) - 1; i >= 0; i-- {
		e := d.entries[i]
		if e.keyID != keyID || !sameProvider(e.provider, provider) {
			continue
		}
		return append([]byte(nil), e.key...), nil
	}
	return nil, fmt.Errorf("%w: provider %s, key id %d", ErrKeyNotFound, provider, keyID)
}

func sameProvider(stored, wanted ProviderRef) bool {
	if wanted.Num != nil {
		return stored.Num != nil && *stored.Num == *wanted.Num
	}
	return wanted.Code != "" && stored.Code == wanted.Code
}

// FileDirectory implements Directory over a JSON file holding a list of Entry.
// The file is read on first lookup.
type FileDirectory struct {
	Path string

	once sync.Once
	dir  *MemoryDirectory
	err  error
}

// Lookup loads the file once and resolves from it
func (f *FileDirectory) Lookup(ctx context.Context, provider ProviderRef, keyID uint32) ([]byte, error) {
	f.once.Do(func() {
		f.dir, f.err = LoadDirectoryFile(f.Path)
	})
	if f.err != nil {
		return nil, f.err
	}
	return f.dir.Lookup(ctx, provider, keyID)
}

// LoadDirectoryFile reads a JSON key directory into memory
func LoadDirectoryFile(path string) (*MemoryDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse key directory: %w", err)
	}

	dir := NewMemoryDirectory()
	for i, e := range entries {
		if e.ProviderNum == nil && e.ProviderCode == "" {
			return nil, fmt.Errorf("key directory entry %d has no provider", i)
		}
		key, err := DecodeKeyText(e.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("key directory entry %d: %w", i, err)
		}
		dir.Add(ProviderRef{Num: e.ProviderNum, Code: e.ProviderCode}, e.KeyID, key)
	}
	return dir, nil
}

// Chain tries each directory in order. A directory that does not know the key
// passes the lookup on; any other error stops it.
type Chain []Directory

// Lookup returns the first key found
func (c Chain) Lookup(ctx context.Context, provider ProviderRef, keyID uint32) ([]byte, error) {
	for _, d := range c {
		key, err := d.Lookup(ctx, provider, keyID)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: provider %s, key id %d", ErrKeyNotFound, provider, keyID)
}
