// Package config provides a dot-path wrapper over decoded JSON used to
// hand an element/graph/engine configuration subtree to InitInternal
// without a bespoke Go struct per element type. A Distributer's
// "routes.0.classes" or an Element's "configure.default_port" are both
// just paths into the same decoded document.
package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/sophon-stream/graphrt/xerr"
)

// Config wraps one node of a decoded JSON document (a map, a slice, or
// a scalar) and resolves dot-separated paths into it. A path like
// "routes.0.interval" walks into the "routes" key, then index 0 of the
// resulting array, then its "interval" key. Reads are safe for
// concurrent use; Set is not, and is meant for tests assembling
// configuration programmatically rather than for the hot path.
type Config struct {
	data interface{}
}

// NewConfig wraps an existing decoded map as a Config. A nil map
// yields an empty, resolvable Config rather than one that panics on
// first use.
func NewConfig(data map[string]interface{}) (c Config) {
	if data == nil {
		data = make(map[string]interface{})
	}
	c.data = data
	return c
}

// FromJSON decodes one element/graph/engine "configure" document into
// a Config, wrapping decode failures as xerr.ParseConfigureFail so
// BuildGraph can report them as a single, consistent error family
// regardless of which element's configuration was malformed.
func FromJSON(raw []byte) (c Config, xe *xerr.Error) {
	if len(raw) == 0 {
		return NewConfig(nil), nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return Config{}, xerr.Wrap(xerr.ParseConfigureFail, err)
	}
	return NewConfig(data), nil
}

func splitPath(path []string) []string {
	if len(path) == 1 {
		return strings.Split(path[0], ".")
	}
	return path
}

// IsSet reports whether path resolves to a non-nil value.
func (c Config) IsSet(path ...string) bool {
	return lookup(c.data, splitPath(path)) != nil
}

// Get resolves path against this Config and returns the Config rooted
// at whatever it finds (or a Config wrapping nil, if path doesn't
// resolve). Chaining Get calls is equivalent to a single call with the
// joined path: c.Get("routes").Get("0").Get("port") ==
// c.Get("routes.0.port").
func (c Config) Get(path ...string) Config {
	return Config{lookup(c.data, splitPath(path))}
}

// typed applies conv to the wrapped value, falling back to def when
// the Config is unset or conv rejects the value. Every scalar accessor
// below is this one pattern specialized to a spf13/cast conversion
// function, so adding a type this module's elements need (e.g. a
// future []byte accessor) is a one-line addition rather than a copy of
// the nil-check/error-swallow boilerplate.
func typed[T any](c Config, def T, conv func(interface{}) (T, error)) T {
	if c.data == nil {
		return def
	}
	v, err := conv(c.data)
	if err != nil {
		return def
	}
	return v
}

// String returns the string value at this path, or def if unset or unparseable.
func (c Config) String(def string) string { return typed(c, def, cast.ToStringE) }

// Bool returns the bool value at this path, or def if unset or unparseable.
func (c Config) Bool(def bool) bool { return typed(c, def, cast.ToBoolE) }

// Duration returns the time.Duration value at this path, or def if unset or unparseable.
func (c Config) Duration(def time.Duration) time.Duration { return typed(c, def, cast.ToDurationE) }

// Time returns the time.Time value at this path, or def if unset or unparseable.
func (c Config) Time(def time.Time) time.Time { return typed(c, def, cast.ToTimeE) }

// Float64 returns the float64 value at this path, or def if unset or unparseable.
func (c Config) Float64(def float64) float64 { return typed(c, def, cast.ToFloat64E) }

// Int returns the int value at this path, or def if unset or unparseable.
func (c Config) Int(def int) int { return typed(c, def, cast.ToIntE) }

// Int64 returns the int64 value at this path, or def if unset or unparseable.
func (c Config) Int64(def int64) int64 { return typed(c, def, cast.ToInt64E) }

// Uint returns the uint value at this path, or def if unset or unparseable.
func (c Config) Uint(def uint) uint { return typed(c, def, cast.ToUintE) }

// Uint64 returns the uint64 value at this path, or def if unset or unparseable.
func (c Config) Uint64(def uint64) uint64 { return typed(c, def, cast.ToUint64E) }

// Array returns the config as a slice of Config, one per element, or
// nil if this path isn't a JSON array. Used to walk a Distributer's
// "routes" list and each route's "classes" list.
func (c Config) Array() (value []Config) {
	arr, ok := c.data.([]interface{})
	if !ok {
		return nil
	}
	value = make([]Config, len(arr))
	for i, v := range arr {
		value[i] = Config{v}
	}
	return value
}

// Map returns the config as a map of Config values keyed by field
// name, or nil if this path isn't a JSON object.
func (c Config) Map() (value map[string]Config) {
	m, ok := c.data.(map[string]interface{})
	if !ok {
		return nil
	}
	value = make(map[string]Config, len(m))
	for k, v := range m {
		value[k] = Config{v}
	}
	return value
}

// Set writes value at path, creating intermediate maps and growing
// slices as needed. Meant for assembling a Config from scratch in
// tests; production configuration always arrives via FromJSON.
func (c Config) Set(value interface{}, path ...string) {
	assign(c.data, value, splitPath(path))
}

// lookup walks source one path segment at a time, descending into
// maps by key and into slices by numeric index, and returns nil as
// soon as a segment fails to resolve.
func lookup(source interface{}, path []string) interface{} {
	cur := source
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[key]
			if !ok {
				return nil
			}
			cur = v
		case []interface{}:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

// assign walks source the same way lookup does, but materializes maps
// and grows slices instead of failing when an intermediate segment is
// missing, finally storing value at the last segment. "#" as the
// segment following a key means "append to the slice at key" rather
// than index into it.
func assign(source, value interface{}, path []string) {
	m, ok := source.(map[string]interface{})
	if !ok || m == nil || len(path) == 0 {
		return
	}

	for i := 0; i < len(path); i++ {
		key := path[i]
		next := ""
		if i < len(path)-1 {
			next = path[i+1]
		}

		idx, isIndex := atoiOK(next)
		if isIndex || next == "#" {
			i++ // consume the index/append segment now
			slice, _ := m[key].([]interface{})

			if next == "#" {
				if i < len(path)-1 {
					nested := make(map[string]interface{})
					m[key] = append(slice, nested)
					m = nested
					continue
				}
				m[key] = append(slice, value)
				return
			}

			if len(slice) <= idx {
				slice = append(slice, make([]interface{}, idx+1-len(slice))...)
			}

			if i < len(path)-1 {
				nested, ok := slice[idx].(map[string]interface{})
				if !ok {
					nested = make(map[string]interface{})
					slice[idx] = nested
				}
				m[key] = slice
				m = nested
				continue
			}

			slice[idx] = value
			m[key] = slice
			return
		}

		if i < len(path)-1 {
			nested, ok := m[key].(map[string]interface{})
			if !ok {
				nested = make(map[string]interface{})
				m[key] = nested
			}
			m = nested
			continue
		}

		m[key] = value
	}
}

func atoiOK(s string) (int, bool) {
	idx, err := strconv.Atoi(s)
	return idx, err == nil
}
