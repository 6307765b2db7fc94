// Package types defines the opaque values that flow through a remote call:
// Params in, Value or *Error out.
//
// Params and Value carry raw JSON. The dispatch layer never looks inside
// them; only handlers and the outer codec do.
package types

import (
	"bytes"
	"encoding/json"
)

// Params is the structured input of a call. An empty Params means the caller
// sent no parameters.
type Params json.RawMessage

// NoParams is the zero Params.
var NoParams Params

// NewParams marshals v into Params.
func NewParams(v any) (Params, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Params(data), nil
}

// IsNone reports whether no parameters were supplied. A JSON null counts as none.
func (p Params) IsNone() bool {
	trimmed := bytes.TrimSpace(p)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Parse decodes the parameters into v. Failures are reported as an
// invalid-params *Error so handlers can return them unchanged.
func (p Params) Parse(v any) error {
	if p.IsNone() {
		return InvalidParams("missing params")
	}
	if err := json.Unmarshal(p, v); err != nil {
		return InvalidParams(err.Error())
	}
	return nil
}

// MarshalJSON emits the raw bytes, or null when empty.
func (p Params) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON keeps a copy of the raw bytes.
func (p *Params) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

// Value is the structured output of a successful call.
type Value json.RawMessage

// Null is the JSON null value.
var Null = Value("null")

// NewValue marshals v into a Value.
func NewValue(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Value(data), nil
}

// Decode unmarshals the value into v.
func (v Value) Decode(out any) error {
	if len(v) == 0 {
		return json.Unmarshal(Null, out)
	}
	return json.Unmarshal(v, out)
}

// Equal compares two values byte for byte after trimming whitespace.
func (v Value) Equal(other Value) bool {
	return bytes.Equal(bytes.TrimSpace(v), bytes.TrimSpace(other))
}

// MarshalJSON emits the raw bytes, or null when empty.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return Null, nil
	}
	return v, nil
}

// UnmarshalJSON keeps a copy of the raw bytes.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = append((*v)[:0], data...)
	return nil
}
