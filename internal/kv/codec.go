package kv

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Shape classifies a value for serializer selection. A store infers the
// shape from its default value once, at construction; every later value for
// that key goes through the same serializer.
type Shape int

const (
	ShapeAny Shape = iota
	ShapeBool
	ShapeString
	ShapeNumber
	ShapeDate
	ShapeList
	ShapeMap
	ShapeObject
)

func shapeOf(v any) Shape {
	if v == nil {
		return ShapeAny
	}
	if _, ok := v.(time.Time); ok {
		return ShapeDate
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return ShapeBool
	case reflect.String:
		return ShapeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ShapeNumber
	case reflect.Float32, reflect.Float64:
		if math.IsNaN(rv.Float()) {
			return ShapeAny
		}
		return ShapeNumber
	case reflect.Slice, reflect.Array:
		return ShapeList
	case reflect.Map:
		return ShapeMap
	case reflect.Struct:
		return ShapeObject
	case reflect.Pointer:
		if rv.IsNil() {
			return ShapeAny
		}
		return shapeOf(rv.Elem().Interface())
	default:
		return ShapeAny
	}
}

// serializer converts between a typed value and its stored string form.
type serializer struct {
	encode func(v reflect.Value) (string, error)
	decode func(raw string, out reflect.Value) error
}

func jsonEncode(v reflect.Value) (string, error) {
	b, err := json.Marshal(v.Interface())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func jsonDecode(raw string, out reflect.Value) error {
	return json.Unmarshal([]byte(raw), out.Addr().Interface())
}

var jsonSerializer = serializer{encode: jsonEncode, decode: jsonDecode}

// serializers maps each shape to its encode/decode strategy. Primitives are
// stored bare so values written by other tooling remain readable; compound
// shapes are stored as JSON.
var serializers = map[Shape]serializer{
	ShapeBool: {
		encode: func(v reflect.Value) (string, error) {
			return strconv.FormatBool(v.Bool()), nil
		},
		decode: func(raw string, out reflect.Value) error {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("decoding bool: %w", err)
			}
			out.SetBool(b)
			return nil
		},
	},
	ShapeString: {
		encode: func(v reflect.Value) (string, error) {
			return v.String(), nil
		},
		decode: func(raw string, out reflect.Value) error {
			out.SetString(raw)
			return nil
		},
	},
	ShapeNumber: jsonSerializer,
	ShapeDate: {
		encode: func(v reflect.Value) (string, error) {
			t, ok := v.Interface().(time.Time)
			if !ok {
				return "", fmt.Errorf("encoding date: %T is not a time.Time", v.Interface())
			}
			return t.Format(time.RFC3339Nano), nil
		},
		decode: func(raw string, out reflect.Value) error {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return fmt.Errorf("decoding date: %w", err)
			}
			out.Set(reflect.ValueOf(t))
			return nil
		},
	},
	ShapeList:   jsonSerializer,
	ShapeMap:    jsonSerializer,
	ShapeObject: jsonSerializer,
	ShapeAny:    jsonSerializer,
}

func encodeValue[T any](shape Shape, v T) (string, error) {
	return serializers[shape].encode(reflect.ValueOf(&v).Elem())
}

func decodeValue[T any](shape Shape, raw string) (T, error) {
	var out T
	if err := serializers[shape].decode(raw, reflect.ValueOf(&out).Elem()); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// decodeMerged decodes raw over a copy of def, so fields present in the
// stored value win and missing fields keep their defaults. Only object and
// map shapes merge.
func decodeMerged[T any](raw string, def T) (T, error) {
	out := cloneShallow(def)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// cloneShallow copies def, duplicating a top-level map so decoding cannot
// mutate the caller's default.
func cloneShallow[T any](def T) T {
	rv := reflect.ValueOf(&def).Elem()
	if rv.Kind() == reflect.Map && !rv.IsNil() {
		clone := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), iter.Value())
		}
		rv.Set(clone)
	}
	return def
}
