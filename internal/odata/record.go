package odata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Record is one raw upstream row. Values are whatever the JSON decoder
// produced, with numbers kept as json.Number.
type Record map[string]any

// Query carries the optional OData expressions for a collection request.
type Query struct {
	Filter  string
	OrderBy string
}

var errNoValueArray = errors.New("response has no value array")

// DecodePage extracts the row array from an OData v4 ({"value": [...]}) or
// v2 ({"d": {"results": [...]}} or {"d": [...]}) response body.
func DecodePage(body []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	var rows any
	if v, ok := doc["value"]; ok {
		rows = v
	} else if d, ok := doc["d"]; ok {
		switch t := d.(type) {
		case []any:
			rows = t
		case map[string]any:
			rows = t["results"]
		}
	}
	items, ok := rows.([]any)
	if !ok {
		return nil, errNoValueArray
	}

	out := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode page: row %d is not an object", i)
		}
		out = append(out, Record(obj))
	}
	return out, nil
}
