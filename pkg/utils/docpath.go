// Package utils provides null-safe access into decoded JSON and BSON documents.
package utils

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// AsMap returns v as a plain map when it is any of the map shapes produced by
// encoding/json or the mongo driver.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, m != nil
	case bson.M:
		return map[string]interface{}(m), m != nil
	case bson.D:
		return m.Map(), true
	default:
		return nil, false
	}
}

// AsSlice returns v as a slice when it is a JSON array or a bson.A.
func AsSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case bson.A:
		return []interface{}(s), true
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

// Lookup walks nested maps along keys. A missing key, a nil value or a
// non-map intermediate yields (nil, false).
func Lookup(doc interface{}, keys ...string) (interface{}, bool) {
	cur := doc
	for _, k := range keys {
		m, ok := AsMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// LookupPath is Lookup with a dotted path such as "result.CVE_Items".
func LookupPath(doc interface{}, path string) (interface{}, bool) {
	if path == "" {
		return doc, doc != nil
	}
	return Lookup(doc, strings.Split(path, ".")...)
}

// String returns the value at keys as a string; non-string scalars are
// formatted, anything absent is "".
func String(doc interface{}, keys ...string) (string, bool) {
	v, ok := Lookup(doc, keys...)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	case float64, int, int32, int64, bool:
		return fmt.Sprintf("%v", s), true
	default:
		return "", false
	}
}

// FirstMap returns the first element of the array at keys when it is an object.
func FirstMap(doc interface{}, keys ...string) (map[string]interface{}, bool) {
	v, ok := Lookup(doc, keys...)
	if !ok {
		return nil, false
	}
	items, ok := AsSlice(v)
	if !ok || len(items) == 0 {
		return nil, false
	}
	return AsMap(items[0])
}

// ValueOrNil returns the value at keys or nil, for building records where an
// absent source field becomes an explicit null.
func ValueOrNil(doc interface{}, keys ...string) interface{} {
	v, _ := Lookup(doc, keys...)
	return v
}

// ConvertToInt handles the numeric shapes found in decoded JSON and BSON.
func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	case []byte:
		return strconv.Atoi(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

// IntAt returns the integer at keys, defaulting to 0.
func IntAt(doc interface{}, keys ...string) (int, bool) {
	v, ok := Lookup(doc, keys...)
	if !ok {
		return 0, false
	}
	n, err := ConvertToInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
