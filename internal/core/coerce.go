package core

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Coerce assigns a driver-produced value to dst, a non-nil pointer,
// converting between the representations Oracle drivers commonly hand
// back and the Go type the caller asked for: numeric strings to ints and
// floats, CHAR-padded strings trimmed, "S"/"N" flags to booleans, times
// to RFC3339 strings.
func Coerce(dst interface{}, src interface{}) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("coerce: destination must be a non-nil pointer, got %T", dst)
	}
	elem := dv.Elem()
	if src == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	if elem.Kind() == reflect.Interface {
		elem.Set(reflect.ValueOf(src))
		return nil
	}
	switch v := src.(type) {
	case string:
		return coerceString(elem, v)
	case int:
		return coerceInt(elem, int64(v))
	case int32:
		return coerceInt(elem, int64(v))
	case int64:
		return coerceInt(elem, v)
	case float32:
		return coerceFloat(elem, float64(v))
	case float64:
		return coerceFloat(elem, v)
	case bool:
		return coerceBool(elem, v)
	case time.Time:
		return coerceTime(elem, v)
	case []byte:
		if elem.Kind() == reflect.String {
			elem.SetString(trimTrailingWhitespace(string(v)))
			return nil
		}
		if elem.Type() == reflect.TypeOf([]byte(nil)) {
			elem.SetBytes(v)
			return nil
		}
		return coerceString(elem, string(v))
	}
	sv := reflect.ValueOf(src)
	if sv.Type().ConvertibleTo(elem.Type()) {
		elem.Set(sv.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("coerce: cannot assign %T to %s", src, elem.Type())
}

func coerceString(elem reflect.Value, v string) error {
	switch elem.Kind() {
	case reflect.String:
		elem.SetString(trimTrailingWhitespace(v))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(trimTrailingWhitespace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("coerce: %q is not an integer", v)
		}
		elem.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(trimTrailingWhitespace(v), 64)
		if err != nil {
			return fmt.Errorf("coerce: %q is not a number", v)
		}
		elem.SetFloat(f)
	case reflect.Bool:
		// flag columns use S/N
		if v == "S" || v == "N" {
			elem.SetBool(v == "S")
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("coerce: %q is not a boolean", v)
		}
		elem.SetBool(b)
	default:
		return fmt.Errorf("coerce: cannot assign string to %s", elem.Type())
	}
	return nil
}

func coerceInt(elem reflect.Value, v int64) error {
	switch elem.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		elem.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		elem.SetUint(uint64(v))
	case reflect.Float32, reflect.Float64:
		elem.SetFloat(float64(v))
	case reflect.String:
		elem.SetString(strconv.FormatInt(v, 10))
	case reflect.Bool:
		elem.SetBool(v != 0)
	default:
		return fmt.Errorf("coerce: cannot assign int64 to %s", elem.Type())
	}
	return nil
}

func coerceFloat(elem reflect.Value, v float64) error {
	switch elem.Kind() {
	case reflect.Float32, reflect.Float64:
		elem.SetFloat(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		elem.SetInt(int64(v))
	case reflect.String:
		elem.SetString(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("coerce: cannot assign float64 to %s", elem.Type())
	}
	return nil
}

func coerceBool(elem reflect.Value, v bool) error {
	switch elem.Kind() {
	case reflect.Bool:
		elem.SetBool(v)
	case reflect.String:
		elem.SetString(strconv.FormatBool(v))
	default:
		return fmt.Errorf("coerce: cannot assign bool to %s", elem.Type())
	}
	return nil
}

func coerceTime(elem reflect.Value, v time.Time) error {
	if elem.Type() == reflect.TypeOf(time.Time{}) {
		elem.Set(reflect.ValueOf(v))
		return nil
	}
	if elem.Kind() == reflect.String {
		elem.SetString(v.Format(time.RFC3339))
		return nil
	}
	return fmt.Errorf("coerce: cannot assign time.Time to %s", elem.Type())
}

func trimTrailingWhitespace(input string) string {
	if len(input) == 0 {
		return input
	}
	return strings.TrimRight(input, " ")
}
