package envelope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHex(t *testing.T) {
	b, err := DecodeHex("0200 0000\n5531")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00, 'U', '1'}, b)

	_, err = DecodeHex("zz")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode hex")
}

func TestDecodeBase64(t *testing.T) {
	t.Run("standard", func(t *testing.T) {
		b, err := DecodeBase64("+/8=")
		require.NoError(t, err)
		assert.Equal(t, []byte{0xfb, 0xff}, b)
	})

	t.Run("url safe", func(t *testing.T) {
		b, err := DecodeBase64("-_8")
		require.NoError(t, err)
		assert.Equal(t, []byte{0xfb, 0xff}, b)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := DecodeBase64("!!!")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode base64")
	})
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "barcode.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02}, 0o600))

	b, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, b)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", ComputeHash([]byte("abc")))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(nil))
}
