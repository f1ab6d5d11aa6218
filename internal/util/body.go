package util

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lizzyg/llmbridge/internal/core"
)

// MergeCustomBody applies caller overrides to a generated JSON request body.
// Each entry key names a top-level field. An object value is merged key by
// key into an existing object; any other value replaces the field. Values
// that are not valid JSON are stored as strings.
func MergeCustomBody(body []byte, entries []core.CustomBody) ([]byte, error) {
	var err error
	for _, e := range entries {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			continue
		}
		body, err = mergeValue(body, escapePath(key), e.Value)
		if err != nil {
			return nil, fmt.Errorf("merge custom body %q: %w", key, err)
		}
	}
	return body, nil
}

func mergeValue(body []byte, path string, value []byte) ([]byte, error) {
	if !gjson.ValidBytes(value) {
		return sjson.SetBytes(body, path, string(value))
	}
	incoming := gjson.ParseBytes(value)
	existing := gjson.GetBytes(body, path)
	if !incoming.IsObject() || !existing.IsObject() {
		return sjson.SetRawBytes(body, path, []byte(incoming.Raw))
	}
	var err error
	incoming.ForEach(func(k, v gjson.Result) bool {
		body, err = mergeValue(body, path+"."+escapePath(k.String()), []byte(v.Raw))
		return err == nil
	})
	return body, err
}

func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
