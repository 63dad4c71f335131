package export

import (
	"fmt"
	"time"
)

// Record is one flat result row. Columns keeps insertion order so CSV
// headers and log lines are stable.
type Record struct {
	Source  string         `json:"source"`
	Time    time.Time      `json:"time"`
	Columns []string       `json:"columns"`
	Values  map[string]any `json:"values"`
}

// NewRecord creates an empty record for a data source.
func NewRecord(source string, t time.Time) *Record {
	return &Record{
		Source: source,
		Time:   t,
		Values: make(map[string]any),
	}
}

// Set stores key, appending it to Columns the first time it is seen.
func (r *Record) Set(key string, value any) *Record {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, ok := r.Values[key]; !ok {
		r.Columns = append(r.Columns, key)
	}
	r.Values[key] = value
	return r
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// String renders the value of key for text formats.
func (r *Record) String(key string) string {
	v, ok := r.Values[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	case float32:
		return fmt.Sprintf("%g", t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
