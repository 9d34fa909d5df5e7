package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
)

// ErrMissingIdentifier is returned when none of a field's known spellings is
// present on a record.
var ErrMissingIdentifier = errors.New("missing identifier")

func missing(what string, keys []string) error {
	return fmt.Errorf("%w: %s (tried %s)", ErrMissingIdentifier, what, strings.Join(keys, ", "))
}

// lookup returns the first non-null value among keys.
func lookup(rec odata.Record, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		return v, true
	}
	return nil, false
}

// identifier resolves a record key as text. Integral numbers keep their exact
// digits; empty strings count as absent.
func identifier(rec odata.Record, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if s := scalarText(v); s != "" {
			return s, true
		}
	}
	return "", false
}

func requireIdentifier(rec odata.Record, what string, keys []string) (string, error) {
	id, ok := identifier(rec, keys)
	if !ok {
		return "", missing(what, keys)
	}
	return id, nil
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return strings.TrimSpace(t.String())
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// text returns the first non-empty string among keys, NFC-normalized with
// inner whitespace collapsed.
func text(rec odata.Record, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = scalarText(v)
		}
		if s = cleanText(s); s != "" {
			return s, true
		}
	}
	return "", false
}

func textOr(rec odata.Record, keys []string, def string) string {
	if s, ok := text(rec, keys); ok {
		return s
	}
	return def
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func integer(rec odata.Record, keys []string) (int, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if n, ok := toInt(v); ok {
			return n, true
		}
	}
	return 0, false
}

func integerOr(rec odata.Record, keys []string, def int) int {
	if n, ok := integer(rec, keys); ok {
		return n
	}
	return def
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) {
			return int(f), true
		}
	case float64:
		if t == math.Trunc(t) {
			return int(t), true
		}
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func boolean(rec odata.Record, keys []string) (bool, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b, true
			}
		default:
			if n, ok := toInt(v); ok {
				return n != 0, true
			}
		}
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timestamp resolves the first parseable date among keys. Naive timestamps
// are read as UTC.
func timestamp(rec odata.Record, keys []string) (*time.Time, bool) {
	for _, k := range keys {
		s, ok := rec[k].(string)
		if !ok {
			continue
		}
		if t, ok := ParseTime(s); ok {
			return &t, true
		}
	}
	return nil, false
}

// ParseTime accepts RFC 3339, naive ISO timestamps, plain dates and the
// OData v2 "/Date(ms)/" form.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.HasPrefix(s, "/Date(") && strings.HasSuffix(s, ")/") {
		inner := strings.TrimSuffix(strings.TrimPrefix(s, "/Date("), ")/")
		// Drop a trailing "+hhmm" offset; the millisecond value is already UTC.
		if i := strings.LastIndexAny(inner, "+-"); i > 0 {
			inner = inner[:i]
		}
		ms, err := strconv.ParseInt(inner, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// isCurrent prefers an explicit flag and otherwise treats a record without an
// end date as current.
func isCurrent(rec odata.Record, flagKeys, endKeys []string) bool {
	if b, ok := boolean(rec, flagKeys); ok {
		return b
	}
	v, ok := lookup(rec, endKeys)
	if !ok {
		return true
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}
