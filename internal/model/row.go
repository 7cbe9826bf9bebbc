package model

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Row is one result row keyed by column name, as returned by a query port.
type Row map[string]any

// timeLayouts are the textual timestamp forms produced by the supported stores.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a timestamp in any layout the stores emit.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func stringToTimeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		return ParseTimestamp(v)
	case []byte:
		return ParseTimestamp(string(v))
	default:
		return data, nil
	}
}

// DecodeRows converts store rows into typed records using their db tags.
// Input is weakly typed so integer booleans and numeric strings decode.
func DecodeRows[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		var rec T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "db",
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.DecodeHookFuncType(stringToTimeHook),
			Result:           &rec,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder: %w", err)
		}
		if err := dec.Decode(map[string]any(row)); err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
