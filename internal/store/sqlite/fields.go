package sqlite

import (
	"encoding/json"
	"maps"
	"strconv"
	"time"

	"github.com/tellmeastory/zine-server/internal/store"
)

// applyFields writes data over existing (nil for a replacing write) and resolves
// field sentinels against the commit time.
func applyFields(existing, data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(existing)+len(data))
	maps.Copy(out, existing)

	for k, v := range data {
		switch v := v.(type) {
		case store.IncrementOp:
			out[k] = incremented(out[k], v.N)
		case store.DeleteFieldOp:
			delete(out, k)
		case store.ServerTimestampOp:
			out[k] = formatTime(now)
		default:
			out[k] = normalize(v, now)
		}
	}
	return out
}

// incremented adds n to a stored number. Anything that is not a number counts as 0.
func incremented(current any, n int64) any {
	switch c := current.(type) {
	case json.Number:
		if i, err := c.Int64(); err == nil {
			return i + n
		}
		if f, err := c.Float64(); err == nil {
			return f + float64(n)
		}
	case int64:
		return c + n
	case int:
		return int64(c) + n
	case float64:
		return c + float64(n)
	}
	return n
}

// normalize converts times to the sortable layout, including inside nested maps.
func normalize(v any, now time.Time) any {
	switch v := v.(type) {
	case time.Time:
		return formatTime(v)
	case *time.Time:
		if v == nil {
			return nil
		}
		return formatTime(*v)
	case map[string]any:
		return applyFields(nil, v, now)
	case map[string]int:
		out := make(map[string]any, len(v))
		for k, n := range v {
			out[k] = json.Number(strconv.Itoa(n))
		}
		return out
	default:
		return v
	}
}
