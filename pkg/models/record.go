// Package models provides the data structures shared by the API client,
// the flattener and the row sinks.
//
// A Record is a JSON object that remembers the order in which its keys were
// first set. The API client decodes every object in a response into a
// Record, so key order survives decoding and the flattener emits columns in
// the order the API sent them. Flat rows are Records too; their values are
// never Records.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"
)

// Record is an insertion-ordered JSON object.
// The zero value is not usable; create records with NewRecord.
type Record struct {
	keys   []string
	values map[string]interface{}
}

// NewRecord creates an empty record with room for n keys.
func NewRecord(n ...int) *Record {
	size := 0
	if len(n) > 0 {
		size = n[0]
	}
	return &Record{
		keys:   make([]string, 0, size),
		values: make(map[string]interface{}, size),
	}
}

// RecordFromMap converts a plain map (and any maps nested in it) into a
// Record. Go maps carry no order, so keys are sorted.
func RecordFromMap(m map[string]interface{}) *Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := NewRecord(len(keys))
	for _, k := range keys {
		r.Set(k, fromPlain(m[k]))
	}
	return r
}

func fromPlain(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return RecordFromMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = fromPlain(item)
		}
		return out
	default:
		return v
	}
}

// Set stores value under key. A new key goes to the end; an existing key
// keeps its position and has its value replaced.
func (r *Record) Set(key string, value interface{}) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (interface{}, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (r *Record) Keys() []string {
	return r.keys
}

// Len returns the number of keys.
func (r *Record) Len() int {
	return len(r.keys)
}

// Range calls fn for every key in order until fn returns false.
func (r *Record) Range(fn func(key string, value interface{}) bool) {
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// ToMap returns a shallow copy of the record as a plain map.
func (r *Record) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(r.keys))
	for _, k := range r.keys {
		out[k] = r.values[k]
	}
	return out
}

// MarshalJSON encodes the record with its keys in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := gojson.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := gojson.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("models: encode %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order at every level.
// Numbers decode as json.Number so identifiers keep their exact text.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("models: expected JSON object, got %v", tok)
	}
	return r.decodeObject(dec)
}

// decodeObject reads key/value pairs up to and including the closing brace.
func (r *Record) decodeObject(dec *json.Decoder) error {
	r.keys = r.keys[:0]
	r.values = make(map[string]interface{})

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("models: expected object key, got %v", tok)
		}
		value, err := decodeValue(dec)
		if err != nil {
			return err
		}
		r.Set(key, value)
	}

	_, err := dec.Token()
	return err
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		nested := NewRecord()
		if err := nested.decodeObject(dec); err != nil {
			return nil, err
		}
		return nested, nil
	case '[':
		items := make([]interface{}, 0)
		for dec.More() {
			item, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return items, nil
	default:
		return nil, fmt.Errorf("models: unexpected delimiter %v", delim)
	}
}
