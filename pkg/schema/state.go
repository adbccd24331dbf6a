// Package schema tracks the columns seen for each output table across runs.
//
// A State maps table names to ordered column lists. Columns are only ever
// appended, in the order they are first observed, so a table's header never
// shrinks between runs. The persisted form is a JSON object of string arrays:
//
//	{"employees": ["id", "personal_name"], "employment_history": ["id", "title"]}
//
// Keys whose value is not a string array are carried through untouched.
package schema

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	jsonpool "github.com/ajitpratap0/hibob-extractor/pkg/json"
	"github.com/ajitpratap0/hibob-extractor/pkg/models"
)

// State holds the known columns per table. It is not safe for concurrent
// use; the extractor owns it for the whole run.
type State struct {
	columns map[string][]string
	index   map[string]map[string]struct{}
	// extra holds unrelated keys found in the state file
	extra map[string]json.RawMessage
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		columns: make(map[string][]string),
		index:   make(map[string]map[string]struct{}),
		extra:   make(map[string]json.RawMessage),
	}
}

// Observe appends the keys of row unknown to table, in row order, and
// returns them.
func (s *State) Observe(table string, row *models.Record) []string {
	return s.Extend(table, row.Keys())
}

// Extend appends the unknown names among columns to table and returns them.
func (s *State) Extend(table string, columns []string) []string {
	idx, ok := s.index[table]
	if !ok {
		idx = make(map[string]struct{}, len(columns))
		s.index[table] = idx
		s.columns[table] = make([]string, 0, len(columns))
		delete(s.extra, table)
	}

	var added []string
	for _, c := range columns {
		if _, seen := idx[c]; seen {
			continue
		}
		idx[c] = struct{}{}
		s.columns[table] = append(s.columns[table], c)
		added = append(added, c)
	}
	return added
}

// Columns returns a copy of the known columns for table, nil if none.
func (s *State) Columns(table string) []string {
	cols, ok := s.columns[table]
	if !ok {
		return nil
	}
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// Tables returns the tracked table names in sorted order.
func (s *State) Tables() []string {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the state as one object, tables and carried keys alike.
func (s *State) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(s.columns)+len(s.extra))
	for k, v := range s.extra {
		doc[k] = v
	}
	for table, cols := range s.columns {
		doc[table] = cols
	}
	return jsonpool.Marshal(doc)
}

// UnmarshalJSON replaces the state with the decoded document. Duplicate
// column names keep their first position.
func (s *State) UnmarshalJSON(data []byte) error {
	fresh := NewState()
	if len(bytes.TrimSpace(data)) == 0 {
		*s = *fresh
		return nil
	}

	var doc map[string]json.RawMessage
	if err := jsonpool.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "state is not a JSON object")
	}

	for key, raw := range doc {
		var cols []string
		if err := jsonpool.Unmarshal(raw, &cols); err != nil || cols == nil {
			fresh.extra[key] = raw
			continue
		}
		fresh.Extend(key, cols)
	}
	*s = *fresh
	return nil
}
