package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Args are the decoded arguments of one tool call.
type Args map[string]any

// String returns args[name] if it is a string.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Validate checks that required parameters are present and that every
// declared parameter has the declared shape. Undeclared keys are ignored.
func (s *Schema) Validate(args Args) error {
	for _, p := range s.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if err := s.validateValue(p.Type, v, p.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateValue(t string, v any, path string) error {
	if elem, ok := elemType(t); ok {
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("parameter %q must be an array", path)
		}
		for i, item := range items {
			if err := s.validateValue(elem, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	if td, ok := s.Types[t]; ok {
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("parameter %q must be an object", path)
		}
		for _, p := range td.Properties {
			pv, ok := obj[p.Name]
			if !ok || pv == nil {
				if p.Required {
					return fmt.Errorf("parameter %q is missing required property %q", path, p.Name)
				}
				continue
			}
			if err := s.validateValue(p.Type, pv, path+"."+p.Name); err != nil {
				return err
			}
		}
		return nil
	}

	switch t {
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("parameter %q must be a string", path)
		}
	case "integer":
		if _, ok := toInt(v); !ok {
			return fmt.Errorf("parameter %q must be an integer", path)
		}
	case "number":
		if _, ok := toFloat(v); !ok {
			return fmt.Errorf("parameter %q must be a number", path)
		}
	case "boolean":
		if _, ok := toBool(v); !ok {
			return fmt.Errorf("parameter %q must be a boolean", path)
		}
	case "object":
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("parameter %q must be an object", path)
		}
	}
	return nil
}

// Bind validates args and copies declared parameters into the struct dst
// points to. Simple parameters are assigned onto same-named fields (json
// tag, or field name ignoring case and underscores); arrays and objects are
// decoded into their field through encoding/json. Parameters without a
// matching field are left in args.
func Bind(s *Schema, args Args, dst any) error {
	if err := s.Validate(args); err != nil {
		return err
	}

	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bind target must be a pointer to a struct, got %T", dst)
	}
	rv = rv.Elem()

	for _, p := range s.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			continue
		}
		field, ok := fieldFor(rv, p.Name)
		if !ok {
			continue
		}
		if err := assign(field, p, v); err != nil {
			return err
		}
	}
	return nil
}

func fieldFor(rv reflect.Value, name string) (reflect.Value, bool) {
	rt := rv.Type()
	plain := strings.ReplaceAll(name, "_", "")
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == name || strings.EqualFold(f.Name, name) || strings.EqualFold(f.Name, plain) {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func assign(field reflect.Value, p Param, v any) error {
	if !p.Simple() {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if err := json.Unmarshal(data, field.Addr().Interface()); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		return nil
	}

	kind := field.Kind()
	switch {
	case kind == reflect.String:
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		field.SetString(s)
	case kind >= reflect.Int && kind <= reflect.Int64:
		n, ok := toInt(v)
		if !ok || field.OverflowInt(n) {
			return fmt.Errorf("parameter %q must be an integer", p.Name)
		}
		field.SetInt(n)
	case kind >= reflect.Uint && kind <= reflect.Uint64:
		n, ok := toInt(v)
		if !ok || n < 0 || field.OverflowUint(uint64(n)) {
			return fmt.Errorf("parameter %q must be a non-negative integer", p.Name)
		}
		field.SetUint(uint64(n))
	case kind == reflect.Float32 || kind == reflect.Float64:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("parameter %q must be a number", p.Name)
		}
		field.SetFloat(f)
	case kind == reflect.Bool:
		b, ok := toBool(v)
		if !ok {
			return fmt.Errorf("parameter %q must be a boolean", p.Name)
		}
		field.SetBool(b)
	case kind == reflect.Interface:
		field.Set(reflect.ValueOf(v))
	default:
		return fmt.Errorf("parameter %q cannot be bound to a %s field", p.Name, field.Type())
	}
	return nil
}

// JSON numbers arrive as float64; models also send numbers as strings.

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	return false, false
}
