package schema

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/tidwall/gjson"
)

var errNotObject = errors.New("top-level value must be a JSON object")

// ValidateJSON checks raw context package JSON without decoding it into a
// struct. Malformed input yields a *core.ParseError.
func (v *Validator) ValidateJSON(data []byte) (Result, error) {
	root, err := parseObject(data, "context package")
	if err != nil {
		return Result{}, err
	}
	return v.validateContext(jsonLookup(root)), nil
}

// ValidateResultJSON checks raw result package JSON.
func (v *Validator) ValidateResultJSON(data []byte) (Result, error) {
	root, err := parseObject(data, "result package")
	if err != nil {
		return Result{}, err
	}
	return validateResult(jsonLookup(root)), nil
}

func parseObject(data []byte, source string) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, &core.ParseError{Source: source, Err: errors.New("invalid JSON")}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return gjson.Result{}, &core.ParseError{Source: source, Err: errNotObject}
	}
	if key := duplicateKey(root, ""); key != "" {
		return gjson.Result{}, &core.ParseError{Source: source, Err: fmt.Errorf("duplicate key %q", key)}
	}
	return root, nil
}

// duplicateKey returns the path of the first object key that appears twice.
// gjson resolves such keys to the first occurrence while encoding/json keeps
// the last, so validated and decoded values would diverge.
func duplicateKey(v gjson.Result, path string) string {
	var dup string
	switch {
	case v.IsObject():
		seen := make(map[string]struct{})
		v.ForEach(func(k, val gjson.Result) bool {
			name := k.String()
			if path != "" {
				name = path + "." + k.String()
			}
			if _, ok := seen[k.String()]; ok {
				dup = name
				return false
			}
			seen[k.String()] = struct{}{}
			dup = duplicateKey(val, name)
			return dup == ""
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, val gjson.Result) bool {
			dup = duplicateKey(val, fmt.Sprintf("%s[%d]", path, i))
			i++
			return dup == ""
		})
	}
	return dup
}
