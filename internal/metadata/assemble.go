package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrMetadata marks an invalid metadata field name in the study
// configuration.
var ErrMetadata = errors.New("metadata: invalid field")

// IsCamelCase reports whether s is a BIDS field name: mixed case, starting
// with an uppercase letter and free of underscores.
func IsCamelCase(s string) bool {
	if s == "" {
		return false
	}
	if s == strings.ToLower(s) || s == strings.ToUpper(s) {
		return false
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	return !strings.Contains(s, "_")
}

// ValidateNames returns an ErrMetadata error for the first key of v that is
// not CamelCase.
func ValidateNames(v Values) error {
	for _, f := range v {
		if !IsCamelCase(f.Key) {
			return fmt.Errorf("%w: %q is not CamelCase", ErrMetadata, f.Key)
		}
	}
	return nil
}

// Inputs are the metadata layers of one image, from lowest to highest
// precedence.
type Inputs struct {
	// Sidecar holds the converter's JSON sidecar fields.
	Sidecar Values
	// FileDerived holds parameters read from the source header.
	FileDerived Values
	// Common and Modality come from the study configuration.
	Common   Values
	Modality Values
	// Fixed fields such as SourceDataFormat and BIDSVersion.
	Fixed Values
}

// Record is an assembled sidecar. It marshals to a JSON object in field
// order.
type Record struct {
	fields Values
}

// Fields returns the record's fields in output order.
func (r Record) Fields() Values {
	return r.fields
}

// Get returns the value of key.
func (r Record) Get(key string) (any, bool) {
	return r.fields.Get(key)
}

// Assemble merges in and returns the sidecar record. Canonical fields come
// first in canonical order, then custom header-derived and study fields.
// Converter sidecar fields outside the canonical set are dropped, as are
// empty values and ExcludedFields.
func Assemble(in Inputs) (Record, error) {
	for _, layer := range []Values{in.Common, in.Modality} {
		if err := ValidateNames(layer); err != nil {
			return Record{}, err
		}
	}

	var merged Values
	for _, layer := range []Values{in.Sidecar, in.FileDerived, in.Common, in.Modality, in.Fixed} {
		merged.Merge(layer)
	}

	var custom []string
	seen := make(map[string]bool)
	for _, layer := range []Values{in.FileDerived, in.Common, in.Modality} {
		for _, f := range layer {
			if IsCanonical(f.Key) || seen[f.Key] {
				continue
			}
			seen[f.Key] = true
			custom = append(custom, f.Key)
		}
	}

	var out Values
	for _, key := range append(append([]string(nil), CanonicalFields...), custom...) {
		if ExcludedFields[key] {
			continue
		}
		v, ok := merged.Get(key)
		if !ok || isEmpty(v) {
			continue
		}
		out = append(out, Field{Key: key, Value: v})
	}
	return Record{fields: out}, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// MarshalJSON writes the record as an object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeSidecar parses a converter JSON sidecar keeping key order.
func DecodeSidecar(data []byte) (Values, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode sidecar: expected object")
	}

	var out Values
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode sidecar: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode sidecar: unexpected key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode sidecar %s: %w", key, err)
		}
		out.Set(key, value)
	}
	return out, nil
}

// Float returns the value of key as a float64 when it is numeric.
func (v Values) Float(key string) (float64, bool) {
	raw, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
