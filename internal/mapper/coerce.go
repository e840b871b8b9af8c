package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// lookup walks a dot-separated path through nested objects.
func lookup(item map[string]any, path string) (any, bool) {
	var cur any = item
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// firstValue returns the first alias whose value is present and non-empty.
func firstValue(item map[string]any, aliases []string) (any, string, bool) {
	for _, alias := range aliases {
		v, ok := lookup(item, alias)
		if !ok || isEmpty(v) {
			continue
		}
		return v, alias, true
	}
	return nil, "", false
}

func firstString(item map[string]any, aliases []string) string {
	for _, alias := range aliases {
		v, ok := lookup(item, alias)
		if !ok {
			continue
		}
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// asString renders scalars as strings; objects and arrays yield "".
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

var numberSuffixes = map[byte]float64{'k': 1e3, 'm': 1e6, 'b': 1e9}

// coerceCount turns the many shapes providers use for counters into an int64:
// plain numbers, strings like "1,234" or "1.2K", objects such as
// {"type":"Like","num":265}, and arrays of such objects (summed).
func coerceCount(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, err
		}
		return int64(math.Round(f)), nil
	case float64:
		return int64(math.Round(t)), nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case string:
		return parseCountString(t)
	case map[string]any:
		for _, key := range []string{"num", "count", "value", "total", "total_count"} {
			if inner, ok := t[key]; ok {
				return coerceCount(inner)
			}
		}
		return 0, fmt.Errorf("object has no numeric field")
	case []any:
		var sum int64
		for _, el := range t {
			n, err := coerceCount(el)
			if err != nil {
				return 0, err
			}
			sum += n
		}
		return sum, nil
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func parseCountString(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	mult := 1.0
	if m, ok := numberSuffixes[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return int64(math.Round(f * mult)), nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// coerceTime accepts RFC3339-like strings and unix seconds or milliseconds.
func coerceTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromUnix(n), nil
		}
		return time.Time{}, fmt.Errorf("unrecognised date %q", s)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return time.Time{}, ferr
			}
			n = int64(f)
		}
		return fromUnix(n), nil
	case float64:
		return fromUnix(int64(t)), nil
	case int64:
		return fromUnix(t), nil
	}
	return time.Time{}, fmt.Errorf("unsupported type %T", v)
}

func fromUnix(n int64) time.Time {
	// Anything past year 2286 in seconds is really milliseconds.
	if n > 1e10 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// collectURLs flattens strings, arrays and objects carrying a url into an
// ordered, de-duplicated list.
func collectURLs(v any, out []string, seen map[string]bool) []string {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	case []any:
		for _, el := range t {
			out = collectURLs(el, out, seen)
		}
	case map[string]any:
		for _, key := range []string{"url", "image_url", "video_url", "src", "uri", "display_url"} {
			if inner, ok := t[key]; ok {
				out = collectURLs(inner, out, seen)
				break
			}
		}
	}
	return out
}
