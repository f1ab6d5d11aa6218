// Package media turns attachment references into base64 payloads for
// inline request parts.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

const maxFileSize = 20 * 1024 * 1024

// ErrRemote is returned for http(s) references, which are sent by URL instead.
var ErrRemote = errors.New("remote media reference")

// Encoded is a base64 payload with its MIME type.
type Encoded struct {
	MimeType string
	Data     string
}

// DataURL renders e as a data: URL.
func (e Encoded) DataURL() string {
	return "data:" + e.MimeType + ";base64," + e.Data
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Encode resolves a data: URL, file:// URL or local path. fallbackMime is
// used when the type can be neither sniffed nor guessed from the extension.
func Encode(ref, fallbackMime string) (Encoded, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURL(ref)
	case IsRemote(ref):
		return Encoded{}, ErrRemote
	}

	path := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return Encoded{}, fmt.Errorf("parse file url: %w", err)
		}
		path = u.Path
	}
	info, err := os.Stat(path)
	if err != nil {
		return Encoded{}, fmt.Errorf("stat media %q: %w", path, err)
	}
	if info.Size() > maxFileSize {
		return Encoded{}, fmt.Errorf("media %q is %d bytes, limit is %d", path, info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Encoded{}, fmt.Errorf("read media %q: %w", path, err)
	}
	return Encoded{
		MimeType: DetectMime(data, path, fallbackMime),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// DetectMime sniffs the content, then falls back to the file extension.
func DetectMime(data []byte, name, fallback string) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			if i := strings.IndexByte(t, ';'); i >= 0 {
				t = t[:i]
			}
			return t
		}
	}
	if fallback != "" {
		return fallback
	}
	return "application/octet-stream"
}

// MimeFromName guesses a MIME type for a remote reference from its path.
func MimeFromName(ref, fallback string) string {
	name := ref
	if u, err := url.Parse(ref); err == nil {
		name = u.Path
	}
	return DetectMime(nil, name, fallback)
}

func decodeDataURL(ref string) (Encoded, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return Encoded{}, errors.New("malformed data url")
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = "text/plain"
	}
	if isBase64 {
		if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
			return Encoded{}, fmt.Errorf("decode data url: %w", err)
		}
		return Encoded{MimeType: mimeType, Data: payload}, nil
	}
	raw, err := url.PathUnescape(payload)
	if err != nil {
		return Encoded{}, fmt.Errorf("decode data url: %w", err)
	}
	return Encoded{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString([]byte(raw))}, nil
}
