// Package codec converts cache values to and from their storage
// representation. Values are JSON-serialized; payloads above a configurable
// threshold are gzip-compressed and stored under a "compressed:" key variant
// so the reader knows to decompress.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"strings"

	"github.com/tiercache/tiercache/pkg/errors"
)

const compressedPrefix = "compressed:"

// Codec encodes and decodes cache values
type Codec struct {
	enabled   bool
	threshold int
}

// New creates a codec. When enabled is false, or threshold is not positive,
// payloads are never compressed.
func New(enabled bool, thresholdBytes int) *Codec {
	return &Codec{
		enabled:   enabled,
		threshold: thresholdBytes,
	}
}

// Encode serializes a value and reports whether the payload was compressed.
func (c *Codec) Encode(v interface{}) ([]byte, bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false, errors.NewError(errors.ErrCodeEncodeFailed, "failed to serialize value").
			WithComponent("codec").
			WithCause(err)
	}

	if !c.enabled || c.threshold <= 0 || len(data) <= c.threshold {
		return data, false, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		return nil, false, errors.NewError(errors.ErrCodeEncodeFailed, "failed to compress value").
			WithComponent("codec").
			WithCause(err)
	}
	if err := gz.Close(); err != nil {
		return nil, false, errors.NewError(errors.ErrCodeEncodeFailed, "failed to finalize compression").
			WithComponent("codec").
			WithCause(err)
	}

	return buf.Bytes(), true, nil
}

// Decode deserializes stored bytes into v, decompressing first when the
// compressed flag is set. Malformed bytes surface as a decode error; callers
// treat that as an operation failure, not a crash.
func (c *Codec) Decode(data []byte, compressed bool, v interface{}) error {
	payload := data

	if compressed {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return errors.NewError(errors.ErrCodeDecodeFailed, "failed to open compressed payload").
				WithComponent("codec").
				WithCause(err)
		}
		payload, err = io.ReadAll(gz)
		closeErr := gz.Close()
		if err != nil {
			return errors.NewError(errors.ErrCodeDecodeFailed, "failed to decompress payload").
				WithComponent("codec").
				WithCause(err)
		}
		if closeErr != nil {
			return errors.NewError(errors.ErrCodeDecodeFailed, "corrupt compressed payload").
				WithComponent("codec").
				WithCause(closeErr)
		}
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return errors.NewError(errors.ErrCodeDecodeFailed, "failed to parse stored value").
			WithComponent("codec").
			WithCause(err)
	}

	return nil
}

// CompressedKey returns the key variant under which a compressed payload is stored
func CompressedKey(key string) string {
	return compressedPrefix + key
}

// IsCompressedKey reports whether a key names a compressed payload
func IsCompressedKey(key string) bool {
	return strings.HasPrefix(key, compressedPrefix)
}

// PlainKey strips the compressed variant prefix, if present
func PlainKey(key string) string {
	return strings.TrimPrefix(key, compressedPrefix)
}
