package credentials

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Decoder turns the opaque inline credential blob into string properties.
// A decrypting implementation can replace JSONDecoder.
type Decoder interface {
	Decode(blob string) (map[string]string, error)
}

// JSONDecoder accepts a JSON object, or a JSON object encoded with standard
// or URL-safe base64. Non-string scalars are stringified.
type JSONDecoder struct{}

func (JSONDecoder) Decode(blob string) (map[string]string, error) {
	raw := []byte(strings.TrimSpace(blob))
	if len(raw) == 0 {
		return nil, errors.New("empty credential")
	}

	if raw[0] != '{' {
		decoded, err := decodeBase64(string(raw))
		if err != nil {
			return nil, errors.New("credential is neither a JSON object nor base64-encoded JSON")
		}
		raw = bytes.TrimSpace(decoded)
	}

	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid credential json: %w", err)
	}
	if obj == nil {
		return nil, errors.New("credential json must be an object")
	}

	values := make(map[string]string, len(obj))
	for k, v := range obj {
		switch tv := v.(type) {
		case string:
			values[k] = tv
		case json.Number:
			values[k] = tv.String()
		case bool:
			values[k] = fmt.Sprintf("%t", tv)
		}
	}
	return values, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("not base64")
}
