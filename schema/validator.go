package schema

import (
	"fmt"
	"reflect"
	"regexp"
)

// Validator is the common contract every validator kind satisfies:
// predicate, pattern, set, range, type tag, or named method.
type Validator interface {
	Validate(value interface{}, instance *Message) bool
}

// PredicateValidator wraps a plain `value -> bool` callable.
type PredicateValidator func(value interface{}) bool

func (f PredicateValidator) Validate(value interface{}, _ *Message) bool { return f(value) }

// PatternValidator passes iff the value, coerced to a string, matches the
// compiled pattern. A nil value fails.
type PatternValidator struct {
	Pattern *regexp.Regexp
}

func (p PatternValidator) Validate(value interface{}, _ *Message) bool {
	if value == nil {
		return false
	}
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	return p.Pattern.MatchString(s)
}

// SetValidator passes iff the value is one of a finite collection.
type SetValidator struct {
	Values []interface{}
}

func (s SetValidator) Validate(value interface{}, _ *Message) bool {
	for _, v := range s.Values {
		if v == value {
			return true
		}
	}
	return false
}

// Ordered is a type constraint covering the signed integer and float
// kinds. RangeValidator does not use it: it converts through toFloat,
// which also accepts unsigned integers.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// RangeValidator passes iff the value falls within [Min, Max] (inclusive).
// Values are compared as float64 after conversion, so any numeric kind is
// accepted.
type RangeValidator struct {
	Min, Max float64
}

func (r RangeValidator) Validate(value interface{}, _ *Message) bool {
	f, ok := toFloat(value)
	if !ok {
		return false
	}
	return f >= r.Min && f <= r.Max
}

func toFloat(value interface{}) (float64, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// TypeValidator passes iff the value's reflect.Kind matches Kind.
type TypeValidator struct {
	Kind reflect.Kind
}

func (t TypeValidator) Validate(value interface{}, _ *Message) bool {
	if value == nil {
		return false
	}
	return reflect.TypeOf(value).Kind() == t.Kind
}

// NamedMethodValidator resolves an identifier against the descriptor's
// registered methods at validation time and passes iff the call returns
// truthy, rather than validating with an inline predicate.
type NamedMethodValidator struct {
	Name string
}

func (n NamedMethodValidator) Validate(_ interface{}, instance *Message) bool {
	if instance == nil || instance.descriptor == nil {
		return false
	}
	fn, ok := instance.descriptor.methods[n.Name]
	if !ok {
		return false
	}
	return fn(instance)
}
