package kafka

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrEmptyPayload = errors.New("empty event payload")

// MustMarshal is for values whose types always encode (plain structs, no channels or funcs).
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// UnwrapPayload decodes an envelope payload into T. A missing or null payload is
// ErrEmptyPayload so handlers can drop it instead of applying a zero value.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if trimmed := bytes.TrimSpace(payload); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return t, ErrEmptyPayload
	}
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
