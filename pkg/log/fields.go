package log

import (
	"fmt"
	"time"
)

// Field is a typed key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Str creates a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// F64 creates a float64 field.
func F64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur creates a duration field rendered by time.Duration.String (e.g. "1.5s").
func Dur(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Err creates an error field under the conventional "error" key.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component tags entries with the owning component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }

func (f Field) render() string {
	switch v := f.Value.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
