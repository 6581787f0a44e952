package candid

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// FromNative renders a value decoded by an IC agent into the JSON convention
// the readers in this package accept, so agent replies go through the same
// validation as any other payload.
//
// Struct fields are named by their `ic` tag. A pointer field is an opt, a
// struct whose fields carry the `variant` option is a variant holding every
// populated branch, a struct tagged "0", "1", ... is a tuple, and any value
// implementing fmt.Stringer (principals) is its text form. A pointer at the
// top level is dereferenced rather than treated as an opt.
func FromNative(v any) (json.RawMessage, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	tree, err := native(rv, "")
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

type icField struct {
	index   int
	name    string
	variant bool
}

func icFields(t reflect.Type) []icField {
	var fields []icField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, ok := f.Tag.Lookup("ic")
		if !ok || tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fields = append(fields, icField{
			index:   i,
			name:    name,
			variant: strings.Contains(","+opts+",", ",variant,"),
		})
	}
	return fields
}

func native(v reflect.Value, path string) (any, error) {
	if !v.IsValid() {
		return nil, Errorf(MalformedValue, path, "no value")
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return []any{}, nil
		}
		inner, err := native(v.Elem(), path)
		if err != nil {
			return nil, err
		}
		return []any{inner}, nil

	case reflect.Struct:
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String(), nil
		}
		return nativeStruct(v, path)

	case reflect.Slice, reflect.Array:
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := native(v.Index(i), Index(path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil

	case reflect.String:
		return v.String(), nil

	case reflect.Bool:
		return v.Bool(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return json.Number(strconv.FormatUint(v.Uint(), 10)), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(v.Int(), 10)), nil

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, Errorf(MalformedValue, path, "non-finite float %v", f)
		}
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
	}

	return nil, Errorf(MalformedValue, path, "unsupported type %s", v.Type())
}

func nativeStruct(v reflect.Value, path string) (any, error) {
	fields := icFields(v.Type())

	if isTuple(fields) {
		out := make([]any, 0, len(fields))
		for i, f := range fields {
			item, err := native(v.Field(f.index), Index(path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		fv := v.Field(f.index)
		fpath := Field(path, f.name)
		if f.variant {
			if fv.Kind() != reflect.Pointer {
				return nil, Errorf(MalformedVariant, fpath, "branch must be a pointer")
			}
			if fv.IsNil() {
				continue
			}
			payload, err := native(fv.Elem(), fpath)
			if err != nil {
				return nil, err
			}
			out[f.name] = payload
			continue
		}
		item, err := native(fv, fpath)
		if err != nil {
			return nil, err
		}
		out[f.name] = item
	}
	return out, nil
}

func isTuple(fields []icField) bool {
	if len(fields) == 0 {
		return false
	}
	for i, f := range fields {
		if f.name != strconv.Itoa(i) {
			return false
		}
	}
	return true
}
