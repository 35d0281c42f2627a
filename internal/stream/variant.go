package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Variant error kinds.
var (
	// ErrUninitializedVariant reports access to a variant carrying no case.
	ErrUninitializedVariant = errors.New("stream: uninitialized variant")
	// ErrNoValueOfType reports a case name outside the declared case set.
	ErrNoValueOfType = errors.New("stream: no value of requested type")
	// ErrIncompatibleVariantType reports a case/value type mismatch.
	ErrIncompatibleVariantType = errors.New("stream: incompatible variant type")
)

// Variant is a tagged sum-type entry: exactly one named case with its value.
// Streams of heterogeneous records use Variant as their entry type and
// subscribe to case subsets with CaseFilter.
type Variant struct {
	Case  string
	Value any
}

// NewVariant builds a variant holding the given case.
func NewVariant(caseName string, value any) Variant {
	return Variant{Case: caseName, Value: value}
}

// Exists reports whether the variant holds a case.
func (v Variant) Exists() bool { return v.Case != "" }

// Call dispatches the variant over the declared case set. Every declared
// case must appear in visitors; an undeclared case fails with
// ErrNoValueOfType, an empty variant with ErrUninitializedVariant.
func (v Variant) Call(visitors map[string]func(value any) error) error {
	if !v.Exists() {
		return ErrUninitializedVariant
	}
	visit, ok := visitors[v.Case]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoValueOfType, v.Case)
	}
	return visit(v.Value)
}

// VariantValue extracts the value of an expected concrete type.
func VariantValue[T any](v Variant) (T, error) {
	var zero T
	if !v.Exists() {
		return zero, ErrUninitializedVariant
	}
	value, ok := v.Value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: case %q holds %T", ErrIncompatibleVariantType, v.Case, v.Value)
	}
	return value, nil
}

// CaseFilter is a TypeFilter admitting only the named cases.
type CaseFilter struct {
	cases   map[string]struct{}
	skipped EntryResponse
}

// FilterCases builds a CaseFilter. skipped is the response reported to the
// runner when an entry is filtered out, letting the subscriber short-circuit
// on the first non-matching entry if it wants to.
func FilterCases(skipped EntryResponse, cases ...string) *CaseFilter {
	f := &CaseFilter{cases: make(map[string]struct{}, len(cases)), skipped: skipped}
	for _, c := range cases {
		f.cases[c] = struct{}{}
	}
	return f
}

// Match implements TypeFilter.
func (f *CaseFilter) Match(v Variant) bool {
	_, ok := f.cases[v.Case]
	return ok
}

// ResponseIfSkipped implements TypeFilter.
func (f *CaseFilter) ResponseIfSkipped() EntryResponse { return f.skipped }

type variantWire struct {
	Case  string          `json:"case"`
	Value json.RawMessage `json:"value"`
}

// VariantCodec persists variants with a declared case set. Decoding an
// unknown case fails rather than guessing.
type VariantCodec struct {
	decoders map[string]func(json.RawMessage) (any, error)
}

// NewVariantCodec returns a codec with an empty case set.
func NewVariantCodec() *VariantCodec {
	return &VariantCodec{decoders: map[string]func(json.RawMessage) (any, error){}}
}

// RegisterVariantCase declares a case and its concrete value type.
func RegisterVariantCase[T any](c *VariantCodec, name string) {
	c.decoders[name] = func(raw json.RawMessage) (any, error) {
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Encode implements persistence.Codec.
func (c *VariantCodec) Encode(v Variant) ([]byte, error) {
	if !v.Exists() {
		return nil, ErrUninitializedVariant
	}
	raw, err := json.Marshal(v.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(variantWire{Case: v.Case, Value: raw})
}

// Decode implements persistence.Codec.
func (c *VariantCodec) Decode(data []byte) (Variant, error) {
	var wire variantWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Variant{}, err
	}
	decode, ok := c.decoders[wire.Case]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrNoValueOfType, wire.Case)
	}
	value, err := decode(wire.Value)
	if err != nil {
		return Variant{}, fmt.Errorf("%w: case %q: %v", ErrIncompatibleVariantType, wire.Case, err)
	}
	return Variant{Case: wire.Case, Value: value}, nil
}
