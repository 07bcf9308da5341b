package actions

import (
	"fmt"
	"strconv"
)

// Params is the loosely-typed parameter bag produced by the intent
// classifier. Fields vary by action; executors pull out what they need
// and validate at their own boundary. Lookups never mutate the map;
// resolution steps (e.g. title to document id) return new values.
type Params map[string]interface{}

// String returns the named parameter as a string, or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// StringSlice returns the named parameter as a string slice. A single
// string value is wrapped; anything else yields nil.
func (p Params) StringSlice(key string) []string {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vv}
	default:
		return nil
	}
}

// Int returns the named parameter as an int, or def when absent or not
// a number. JSON decoding hands numbers over as float64.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return def
}

// Bool returns the named parameter as a bool, or def when absent.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// require returns an error naming the first missing key, so executors
// fail fast with a descriptive message instead of partially executing.
func (p Params) require(action string, keys ...string) error {
	for _, key := range keys {
		if p.String(key) == "" {
			return fmt.Errorf("%s requires a non-empty %q parameter", action, key)
		}
	}
	return nil
}
