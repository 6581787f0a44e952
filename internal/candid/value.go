// Package candid reads Candid values rendered as JSON.
//
// The convention follows the Candid JSON mapping used by IC agents: an opt is a
// zero- or one-element array, a variant is an object with exactly one key, a
// vec of tuples is an array of two-element arrays, and principals are their
// canonical text form. Every reader here rejects shapes that break the
// convention instead of coercing them.
package candid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
)

// Fields is a decoded record keyed by field name.
type Fields map[string]json.RawMessage

// Pair is one element of a vec of (key, value) tuples.
type Pair struct {
	Key   json.RawMessage
	Value json.RawMessage
}

// Field extends a decode path with a record field.
func Field(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// Index extends a decode path with a vector index.
func Index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func missing(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0
}

func absent(raw json.RawMessage) bool {
	return missing(raw) || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// object walks a JSON object token by token so repeated keys survive; a map
// decode would silently keep the last one.
func object(raw json.RawMessage) ([]string, Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, errors.New("not an object")
	}

	var keys []string
	fields := make(Fields)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, errors.New("object key is not a string")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		fields[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, errors.New("trailing data after object")
	}
	return keys, fields, nil
}

// Opt unwraps an optional. A missing field counts as absent; null does not,
// since the convention always renders an opt as a container.
func Opt(raw json.RawMessage, path string) (json.RawMessage, bool, error) {
	if missing(raw) {
		return nil, false, nil
	}
	var items []json.RawMessage
	if absent(raw) || json.Unmarshal(raw, &items) != nil {
		return nil, false, Errorf(MalformedOptional, path, "expected a zero or one element container")
	}
	switch len(items) {
	case 0:
		return nil, false, nil
	case 1:
		return items[0], true, nil
	default:
		return nil, false, Errorf(MalformedOptional, path, "container holds %d elements", len(items))
	}
}

// Variant resolves the single populated tag of a variant drawn from tags.
func Variant(raw json.RawMessage, path string, tags ...string) (string, json.RawMessage, error) {
	if absent(raw) {
		return "", nil, Errorf(MalformedVariant, path, "expected one of %s", strings.Join(tags, "|"))
	}
	keys, fields, err := object(raw)
	if err != nil {
		return "", nil, Errorf(MalformedVariant, path, "expected one of %s", strings.Join(tags, "|"))
	}
	if len(keys) != 1 {
		return "", nil, Errorf(MalformedVariant, path, "%d tags populated, want exactly one of %s", len(keys), strings.Join(tags, "|"))
	}
	tag := keys[0]
	if !slices.Contains(tags, tag) {
		return "", nil, Errorf(MalformedVariant, path, "unknown tag %q", tag)
	}
	return tag, fields[tag], nil
}

// Record splits an object into its fields. A field named twice is rejected.
func Record(raw json.RawMessage, path string) (Fields, error) {
	if absent(raw) {
		return nil, Errorf(MalformedValue, path, "expected a record")
	}
	keys, fields, err := object(raw)
	if err != nil {
		return nil, Errorf(MalformedValue, path, "expected a record")
	}
	if len(keys) != len(fields) {
		seen := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				return nil, Errorf(DuplicateKey, Field(path, k), "field repeated")
			}
			seen[k] = struct{}{}
		}
	}
	return fields, nil
}

// Vec reads a vector. A vec is never optional, so a missing field is an error.
func Vec(raw json.RawMessage, path string) ([]json.RawMessage, error) {
	if missing(raw) {
		return nil, Errorf(MalformedValue, path, "missing vector")
	}
	var items []json.RawMessage
	if absent(raw) || json.Unmarshal(raw, &items) != nil {
		return nil, Errorf(MalformedValue, path, "expected a vector")
	}
	return items, nil
}

// Pairs reads a vec of (key, value) tuples.
func Pairs(raw json.RawMessage, path string) ([]Pair, error) {
	items, err := Vec(raw, path)
	if err != nil {
		return nil, err
	}
	pairs := make([]Pair, 0, len(items))
	for i, item := range items {
		var tuple []json.RawMessage
		if err := json.Unmarshal(item, &tuple); err != nil || len(tuple) != 2 {
			return nil, Errorf(MalformedValue, Index(path, i), "expected a (key, value) tuple")
		}
		pairs = append(pairs, Pair{Key: tuple[0], Value: tuple[1]})
	}
	return pairs, nil
}

// Text reads a text value.
func Text(raw json.RawMessage, path string) (string, error) {
	var s string
	if absent(raw) || json.Unmarshal(raw, &s) != nil {
		return "", Errorf(MalformedValue, path, "expected text")
	}
	return s, nil
}

// Principal reads a principal in its canonical textual form.
func Principal(raw json.RawMessage, path string) (string, error) {
	s, err := Text(raw, path)
	if err != nil {
		return "", Errorf(MalformedValue, path, "expected a principal")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", Errorf(MalformedValue, path, "empty principal")
	}
	return s, nil
}

// Number reads a nat, int or float exactly. Gateways render 64-bit nats as
// strings to keep precision, so quoted numbers are accepted.
func Number(raw json.RawMessage, path string) (decimal.Decimal, error) {
	if absent(raw) {
		return decimal.Decimal{}, Errorf(MalformedValue, path, "expected a number")
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(bytes.TrimSpace(raw)); err != nil {
		return decimal.Decimal{}, Errorf(MalformedValue, path, "expected a number: %v", err)
	}
	return d, nil
}

// Nat64 reads a non-negative integer that fits an int64.
func Nat64(raw json.RawMessage, path string) (int64, error) {
	d, err := Number(raw, path)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, Errorf(MalformedValue, path, "%s is not a representable nat64", d.String())
	}
	return d.IntPart(), nil
}

// OptNumber reads an opt number.
func OptNumber(raw json.RawMessage, path string) (decimal.NullDecimal, error) {
	inner, ok, err := Opt(raw, path)
	if err != nil || !ok {
		return decimal.NullDecimal{}, err
	}
	d, err := Number(inner, path)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// OptNat64 reads an opt nat64.
func OptNat64(raw json.RawMessage, path string) (null.Int, error) {
	inner, ok, err := Opt(raw, path)
	if err != nil || !ok {
		return null.Int{}, err
	}
	n, err := Nat64(inner, path)
	if err != nil {
		return null.Int{}, err
	}
	return null.IntFrom(n), nil
}

// OptText reads an opt text.
func OptText(raw json.RawMessage, path string) (null.String, error) {
	inner, ok, err := Opt(raw, path)
	if err != nil || !ok {
		return null.String{}, err
	}
	s, err := Text(inner, path)
	if err != nil {
		return null.String{}, err
	}
	return null.StringFrom(s), nil
}

// OptPrincipal reads an opt principal.
func OptPrincipal(raw json.RawMessage, path string) (null.String, error) {
	inner, ok, err := Opt(raw, path)
	if err != nil || !ok {
		return null.String{}, err
	}
	s, err := Principal(inner, path)
	if err != nil {
		return null.String{}, err
	}
	return null.StringFrom(s), nil
}
