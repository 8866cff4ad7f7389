package domain

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// FieldsOf encodes an entity into document fields. Struct fields tagged with
// `mapstructure:"-"` (the ID and the store-assigned timestamp) are left out.
func FieldsOf(v interface{}) (Fields, error) {
	out := map[string]interface{}{}
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, err
	}
	return Fields(out), nil
}

// Decode fills out (a pointer to an entity) from a document. Stores differ in
// how they hand back numbers and timestamps (JSON floats, BSON int32, RFC 3339
// strings) so the decoder is lenient about those.
func Decode(doc Document, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			numberToIntHook,
		),
		Result: out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]interface{}(doc.Fields)); err != nil {
		return err
	}
	if m, ok := out.(interface{ setMeta(string, time.Time) }); ok {
		m.setMeta(doc.ID, doc.CreatedAt)
	}
	return nil
}

// numberToIntHook truncates any numeric value decoded into an int field.
func numberToIntHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	switch n := data.(type) {
	case float64:
		return int(n), nil
	case float32:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	}
	return data, nil
}
