package store

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode decodes a document's data into v using v's json tags.
func Decode(doc Document, v any) error {
	return DecodeData(doc.Data, v)
}

// DecodeData decodes document data into v using v's json tags. Timestamps may
// arrive as time.Time (Firestore) or as RFC 3339 strings (SQLite); numbers as any
// integer type or json.Number.
func DecodeData(data map[string]any, v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           v,
		WeaklyTypedInput: true,
		DecodeHook:       stringToTime,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("decode document data: %w", err)
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

func stringToTime(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != timeType {
		return data, nil
	}
	return time.Parse(time.RFC3339Nano, data.(string))
}

// DecodeAll decodes every document with decode, skipping documents that fail.
// The number of skipped documents is returned so callers can log it.
func DecodeAll[T any](docs []Document, decode func(Document) (T, error)) ([]T, int) {
	out := make([]T, 0, len(docs))
	skipped := 0
	for _, d := range docs {
		v, err := decode(d)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}
