package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TextFormatter renders entries as human-readable single lines.
type TextFormatter struct {
	// DisableTimestamp omits the timestamp prefix; useful for tests.
	DisableTimestamp bool
}

// Format renders the entry as "ts LEVEL message key=value ...".
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var b bytes.Buffer
	if !f.DisableTimestamp {
		b.WriteString(entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", entry.Level.String(), entry.Message)
	for _, fld := range entry.Fields {
		v := fld.render()
		if strings.ContainsAny(v, " \t\"") {
			fmt.Fprintf(&b, " %s=%q", fld.Key, v)
		} else {
			fmt.Fprintf(&b, " %s=%s", fld.Key, v)
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// JSONFormatter renders entries as single-line JSON objects.
type JSONFormatter struct{}

// Format renders the entry with ts, level, msg plus one key per field.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	obj := make(map[string]any, len(entry.Fields)+3)
	obj["ts"] = entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")
	obj["level"] = entry.Level.String()
	obj["msg"] = entry.Message
	for _, fld := range entry.Fields {
		obj[fld.Key] = fld.Value
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
