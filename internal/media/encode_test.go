package media

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestEncodeDataURL(t *testing.T) {
	enc, err := Encode("data:image/jpeg;base64,AAEC", "")
	require.NoError(t, err)
	assert.Equal(t, Encoded{MimeType: "image/jpeg", Data: "AAEC"}, enc)
	assert.Equal(t, "data:image/jpeg;base64,AAEC", enc.DataURL())

	enc, err = Encode("data:text/plain,hello%20world", "")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello world")), enc.Data)

	_, err = Encode("data:image/png;base64,@@@", "")
	assert.Error(t, err)
	_, err = Encode("data:nocomma", "")
	assert.Error(t, err)
}

func TestEncodeLocalFileSniffsType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "picture.bin")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	for _, ref := range []string{path, "file://" + path} {
		enc, err := Encode(ref, "")
		require.NoError(t, err)
		assert.Equal(t, "image/png", enc.MimeType)
		assert.Equal(t, base64.StdEncoding.EncodeToString(pngHeader), enc.Data)
	}
}

func TestEncodeFallsBackToExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not really a pdf"), 0o600))

	enc, err := Encode(path, "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", enc.MimeType)
}

func TestEncodeRemoteAndMissing(t *testing.T) {
	_, err := Encode("https://example.com/a.png", "")
	assert.ErrorIs(t, err, ErrRemote)
	_, err = Encode(filepath.Join(t.TempDir(), "missing.png"), "")
	assert.Error(t, err)
}

func TestMimeFromName(t *testing.T) {
	assert.Equal(t, "image/png", MimeFromName("https://example.com/x/a.png?sig=1", ""))
	assert.Equal(t, "image/jpeg", MimeFromName("https://example.com/x", "image/jpeg"))
}
