package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Primitive kinds understood by the shape validator.
const (
	KindObject  = "object"
	KindArray   = "array"
	KindString  = "string"
	KindNumber  = "number"
	KindInteger = "integer"
	KindBoolean = "boolean"
	KindNull    = "null"
)

// ErrInvalidShape is returned when a Shape declaration breaks its own invariants.
var ErrInvalidShape = errors.New("invalid shape declaration")

// Shape describes the expected structure of an argument value.
// It marshals as a JSON Schema fragment so it can be advertised to clients as-is.
type Shape struct {
	Type        string           `json:"type,omitempty"`
	Description string           `json:"description,omitempty"`
	Properties  map[string]Shape `json:"properties,omitempty"` // For type "object"
	Required    []string         `json:"required,omitempty"`   // For type "object"
	Items       *Shape           `json:"items,omitempty"`      // For type "array"
}

// Check verifies that every required field of every nested object shape is
// also declared in its Properties.
func (s Shape) Check() error {
	return s.check("")
}

func (s Shape) check(path string) error {
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("%w: required field %q is not declared at %s", ErrInvalidShape, name, displayPath(path))
		}
	}
	for _, name := range sortedKeys(s.Properties) {
		if err := s.Properties[name].check(joinField(path, name)); err != nil {
			return err
		}
	}
	if s.Items != nil {
		return s.Items.check(path + "[]")
	}
	return nil
}

// ShapeError reports the first violation found while validating a value.
type ShapeError struct {
	Path   string // dotted/indexed path to the offending value, empty for the root
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s", displayPath(e.Path), e.Reason)
}

// Validate checks value against shape and returns the first violation as a
// *ShapeError, or nil. Value is expected to be a decoded JSON value
// (map[string]any, []any, string, float64, json.Number, bool or nil).
// A nil value at the root of an object shape is treated as an empty object.
func Validate(shape Shape, value any) error {
	if value == nil && shape.Type == KindObject {
		value = map[string]any{}
	}
	return validate(shape, value, "")
}

func validate(shape Shape, value any, path string) error {
	if shape.Type == "" {
		return nil
	}
	if !matchesKind(shape.Type, value) {
		return &ShapeError{Path: path, Reason: fmt.Sprintf("expected %s, got %s", shape.Type, KindOf(value))}
	}

	switch shape.Type {
	case KindObject:
		obj := value.(map[string]any)
		for _, name := range shape.Required {
			if _, ok := obj[name]; !ok {
				return &ShapeError{Path: path, Reason: fmt.Sprintf("missing required field %q", name)}
			}
		}
		for _, name := range sortedKeys(shape.Properties) {
			v, ok := obj[name]
			if !ok {
				continue
			}
			if err := validate(shape.Properties[name], v, joinField(path, name)); err != nil {
				return err
			}
		}
	case KindArray:
		if shape.Items == nil {
			return nil
		}
		for i, item := range value.([]any) {
			if err := validate(*shape.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesKind(kind string, value any) bool {
	switch kind {
	case KindObject:
		_, ok := value.(map[string]any)
		return ok
	case KindArray:
		_, ok := value.([]any)
		return ok
	case KindString:
		_, ok := value.(string)
		return ok
	case KindBoolean:
		_, ok := value.(bool)
		return ok
	case KindNull:
		return value == nil
	case KindNumber:
		return isNumber(value)
	case KindInteger:
		return isInteger(value)
	default:
		// Unknown kinds are not checked.
		return true
	}
}

// KindOf names the JSON kind of a decoded value.
func KindOf(value any) string {
	switch v := value.(type) {
	case nil:
		return KindNull
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	case string:
		return KindString
	case bool:
		return KindBoolean
	default:
		if isInteger(v) {
			return KindInteger
		}
		if isNumber(v) {
			return KindNumber
		}
		return fmt.Sprintf("%T", value)
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v) == math.Trunc(float64(v))
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}

func joinField(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "arguments"
	}
	return path
}

// sortedKeys keeps validation deterministic so the same input always reports
// the same first violation.
func sortedKeys(m map[string]Shape) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
