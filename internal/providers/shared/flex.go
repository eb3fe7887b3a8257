package shared

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// FlexFloat decodes a JSON number, a numeric string ("12.5", "1,024") or
// null. Anything else decodes as absent rather than failing the payload.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if v, ok := ParseNumber(s); ok {
			*f = FlexFloat{Value: v, Valid: true}
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

func (f FlexFloat) Or(def float64) float64 {
	if !f.Valid {
		return def
	}
	return f.Value
}

func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// ParseNumber parses a decimal string allowing thousands separators and a
// trailing percent sign.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "_", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// AnyFloat converts a value decoded into interface{} to a float.
func AnyFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		return ParseNumber(val)
	}
	return 0, false
}

// KeyStrategy picks one key out of an object's keys.
type KeyStrategy struct {
	Name  string
	Match func(keys []string) (string, bool)
}

// KeyStrategies are tried in order; the first match wins.
type KeyStrategies []KeyStrategy

func FixedKey(key string) KeyStrategy {
	return KeyStrategy{Name: "fixed", Match: func(keys []string) (string, bool) {
		for _, k := range keys {
			if k == key {
				return k, true
			}
		}
		return "", false
	}}
}

func AliasKeys(aliases ...string) KeyStrategy {
	return KeyStrategy{Name: "alias", Match: func(keys []string) (string, bool) {
		for _, alias := range aliases {
			for _, k := range keys {
				if k == alias {
					return k, true
				}
			}
		}
		return "", false
	}}
}

// HeuristicKey matches the first key, in sorted order, whose normalized
// form contains any needle.
func HeuristicKey(needles ...string) KeyStrategy {
	return KeyStrategy{Name: "heuristic", Match: func(keys []string) (string, bool) {
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		for _, needle := range needles {
			n := NormalizeKey(needle)
			for _, k := range sorted {
				if strings.Contains(NormalizeKey(k), n) {
					return k, true
				}
			}
		}
		return "", false
	}}
}

func NormalizeKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(k))
}

// Resolve finds a key of obj holding a non-null value, skipping exclude.
// It returns the key and the name of the strategy that matched.
func (s KeyStrategies) Resolve(obj map[string]json.RawMessage, exclude ...string) (key, strategy string, ok bool) {
	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if skip[k] || len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, st := range s {
		if k, ok := st.Match(keys); ok {
			return k, st.Name, true
		}
	}
	return "", "", false
}
