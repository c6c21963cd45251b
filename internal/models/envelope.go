package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// NewEnvelope builds the response envelope. Details is dropped unless it is
// truthy: null, false, 0 and "" are omitted, objects and arrays are kept even
// when empty. A nil success or message is left out of the JSON, which is how
// a field missing from the external reply is rendered.
func NewEnvelope(success, message, details interface{}) Envelope {
	env := Envelope{
		Success: success,
		Message: message,
	}
	if Truthy(details) {
		env.Details = details
	}
	return env
}

// Succeeded reports whether the envelope's success value is truthy.
func (e Envelope) Succeeded() bool {
	return Truthy(e.Success)
}

// Text renders the message as plain text.
func (e Envelope) Text() string {
	switch m := e.Message.(type) {
	case nil:
		return ""
	case string:
		return m
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(m, &s); err == nil {
			return s
		}
		return string(bytes.TrimSpace(m))
	default:
		if b, err := json.Marshal(m); err == nil {
			return string(b)
		}
		return fmt.Sprint(m)
	}
}

// Truthy applies JavaScript truthiness: nil, false, 0, NaN and "" are falsy,
// objects and arrays are truthy even when empty.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case json.RawMessage:
		return rawTruthy(t)
	case json.Number:
		f, err := t.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Invalid:
		return false
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return Truthy(rv.Elem().Interface())
	case reflect.Map, reflect.Slice:
		return !rv.IsNil()
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func rawTruthy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case 'n', 'f':
		return false
	case 't', '{', '[':
		return true
	case '"':
		return len(trimmed) > 2
	}
	f, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return true
	}
	return f != 0
}
