package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/kernattr/internal/ir"
)

// marshalCanonical converts a result value to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalCanonical(what string, v map[string]any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT into a map. Numbers decode as
// int64 so a decoded result marshals back to the same canonical text.
func unmarshalObject(what, data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	out, err := fromJSON(obj)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return out.(map[string]any), nil
}

func fromJSON(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %s", val)
		}
		return n, nil
	case []any:
		for i, e := range val {
			conv, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			val[i] = conv
		}
		return val, nil
	case map[string]any:
		for k, e := range val {
			conv, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			val[k] = conv
		}
		return val, nil
	case nil:
		return nil, fmt.Errorf("null is not a valid result value")
	}
	return v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
