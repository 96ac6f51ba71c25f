package schema

import (
	"reflect"

	"github.com/tidwall/gjson"
)

type jsonKind int

const (
	kindMissing jsonKind = iota
	kindNull
	kindString
	kindNumber
	kindBool
	kindObject
	kindArray
	kindOther
)

func (k jsonKind) String() string {
	switch k {
	case kindNull:
		return "null"
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindBool:
		return "boolean"
	case kindObject:
		return "object"
	case kindArray:
		return "array"
	case kindMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// fieldValue is a source-neutral view of one top-level field so the same
// rules apply to decoded maps and raw JSON.
type fieldValue struct {
	present bool
	kind    jsonKind
	str     string
	num     float64
	elems   []jsonKind
}

func (f fieldValue) describe() string {
	if f.kind == kindNumber && !isIntegral(f.num) {
		return "non-integer number"
	}
	return f.kind.String()
}

type lookupFunc func(name string) fieldValue

func mapLookup(raw map[string]any) lookupFunc {
	return func(name string) fieldValue {
		v, ok := raw[name]
		if !ok {
			return fieldValue{}
		}
		f := inspectAny(v)
		f.present = true
		return f
	}
}

func inspectAny(v any) fieldValue {
	switch t := v.(type) {
	case nil:
		return fieldValue{kind: kindNull}
	case string:
		return fieldValue{kind: kindString, str: t}
	case bool:
		return fieldValue{kind: kindBool}
	case float64:
		return fieldValue{kind: kindNumber, num: t}
	case float32:
		return fieldValue{kind: kindNumber, num: float64(t)}
	case int:
		return fieldValue{kind: kindNumber, num: float64(t)}
	case int32:
		return fieldValue{kind: kindNumber, num: float64(t)}
	case int64:
		return fieldValue{kind: kindNumber, num: float64(t)}
	case map[string]any:
		return fieldValue{kind: kindObject}
	case []any:
		elems := make([]jsonKind, len(t))
		for i, e := range t {
			elems[i] = inspectAny(e).kind
		}
		return fieldValue{kind: kindArray, elems: elems}
	case []string:
		elems := make([]jsonKind, len(t))
		for i := range t {
			elems[i] = kindString
		}
		return fieldValue{kind: kindArray, elems: elems}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return fieldValue{kind: kindObject}
		}
	case reflect.Slice, reflect.Array:
		elems := make([]jsonKind, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems[i] = inspectAny(rv.Index(i).Interface()).kind
		}
		return fieldValue{kind: kindArray, elems: elems}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fieldValue{kind: kindNumber, num: float64(rv.Int())}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fieldValue{kind: kindNumber, num: float64(rv.Uint())}
	case reflect.String:
		return fieldValue{kind: kindString, str: rv.String()}
	}
	return fieldValue{kind: kindOther}
}

func jsonLookup(root gjson.Result) lookupFunc {
	return func(name string) fieldValue {
		r := root.Get(name)
		if !r.Exists() {
			return fieldValue{}
		}
		f := inspectJSON(r)
		f.present = true
		return f
	}
}

func inspectJSON(r gjson.Result) fieldValue {
	switch r.Type {
	case gjson.Null:
		return fieldValue{kind: kindNull}
	case gjson.String:
		return fieldValue{kind: kindString, str: r.Str}
	case gjson.Number:
		return fieldValue{kind: kindNumber, num: r.Num}
	case gjson.True, gjson.False:
		return fieldValue{kind: kindBool}
	}
	switch {
	case r.IsObject():
		return fieldValue{kind: kindObject}
	case r.IsArray():
		arr := r.Array()
		elems := make([]jsonKind, len(arr))
		for i, e := range arr {
			elems[i] = inspectJSON(e).kind
		}
		return fieldValue{kind: kindArray, elems: elems}
	}
	return fieldValue{kind: kindOther}
}
