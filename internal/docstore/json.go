package docstore

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

// Marshal encodes doc and checks that it is a JSON object.
func Marshal(doc any) (json.RawMessage, error) {
	var b []byte
	if raw, ok := doc.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("raw document is not valid JSON")
		}
		b = bytes.TrimSpace(raw)
	} else {
		var err error
		if b, err = json.Marshal(doc); err != nil {
			return nil, errors.Wrap(err, "encode document")
		}
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, errors.Errorf("document must encode to a JSON object, got %.20s", b)
	}
	return b, nil
}

// Merge applies fields over the top level of raw.
func Merge(raw json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode stored document")
	}
	for k, v := range fields {
		doc[k] = v
	}
	return Marshal(doc)
}

// Match reports whether raw satisfies every filter.
func Match(raw json.RawMessage, where []Where) (bool, error) {
	if len(where) == 0 {
		return true, nil
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, errors.Wrap(err, "decode stored document")
	}
	for _, w := range where {
		want, err := normalize(w.Value)
		if err != nil {
			return false, err
		}
		got, ok := doc[w.Field]
		if !ok {
			return false, nil
		}
		switch w.Op {
		case OpEqual:
			if !reflect.DeepEqual(got, want) {
				return false, nil
			}
		case OpArrayContains:
			arr, isArr := got.([]any)
			if !isArr || !containsValue(arr, want) {
				return false, nil
			}
		default:
			return false, errors.Errorf("unsupported query operator %q", w.Op)
		}
	}
	return true, nil
}

// normalize round-trips v through JSON so it compares equal to decoded documents.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode query value")
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "decode query value")
	}
	return out, nil
}

func containsValue(arr []any, want any) bool {
	for _, el := range arr {
		if reflect.DeepEqual(el, want) {
			return true
		}
	}
	return false
}
