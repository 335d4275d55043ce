package utils

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// DecimalHook converts strings, json numbers, floats and integers into decimal.Decimal.
func DecimalHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		return decimal.NewFromString(v)
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return nil, fmt.Errorf("cannot convert %s to decimal", from)
	}
}

// Decode decodes a generic document into result with weak typing and decimal support.
// When strict is set, keys without a matching field are an error.
func Decode(input any, result any, tagName string, strict bool) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecimalHook,
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		TagName:          tagName,
		Result:           result,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
