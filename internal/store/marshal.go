package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/osq/internal/ir"
)

// marshalProperties converts a property map to JSON TEXT for storage.
// Keys are written in canonical order so identical maps store identical
// text.
func marshalProperties(props ir.Object) (string, error) {
	if props == nil {
		props = ir.Object{}
	}
	data, err := props.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}

// unmarshalProperties parses stored JSON TEXT into a property map.
// Uses ir.Object.UnmarshalJSON which keeps integer precision via
// json.Number. Values come back untyped: timestamps are strings and
// integral doubles are Int until the caller coerces them.
func unmarshalProperties(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return obj, nil
}
