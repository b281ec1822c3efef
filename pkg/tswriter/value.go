package tswriter

import (
	"encoding/json"
	"fmt"
)

// Kind tags a Value's underlying type. Bool is checked before Int during
// decode: some source ecosystems treat bool as a subtype of
// int, which causes booleans to be misformatted as 0/1 integers unless the
// check order is explicit. Parsing JSON into this sum type once, up front,
// then formatting by exhaustive match on Kind eliminates that hazard
// entirely — there is no later point where a bool could be re-inspected as
// an int.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
)

// Value is a single metric field value, already classified into exactly one
// of the three field kinds the line-protocol encoder understands. Strings
// and nulls never become a Value — ParseMetrics drops them.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
}

// ParseMetrics decodes a raw metrics JSON object into the field map the
// encoder consumes. Booleans and integers format
// differently even though JSON represents both as plain numbers/literals, so
// classification must happen here, once, not at format time.
func ParseMetrics(raw json.RawMessage) (map[string]Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding metrics: %w", err)
	}

	out := make(map[string]Value, len(decoded))
	for k, v := range decoded {
		val, ok := classify(v)
		if !ok {
			continue // string or null: dropped
		}
		out[k] = val
	}
	return out, nil
}

// classify maps a decoded JSON value to a Value, reporting ok=false for
// kinds the line protocol doesn't carry (string, null, nested object/array).
func classify(v any) (Value, bool) {
	switch t := v.(type) {
	case bool:
		return Value{Kind: KindBool, Bool: t}, true
	case float64:
		if t == float64(int64(t)) {
			return Value{Kind: KindInt, Int: int64(t)}, true
		}
		return Value{Kind: KindFloat, Float: t}, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Value{Kind: KindInt, Int: i}, true
		}
		if f, err := t.Float64(); err == nil {
			return Value{Kind: KindFloat, Float: f}, true
		}
		return Value{}, false
	default:
		return Value{}, false
	}
}
