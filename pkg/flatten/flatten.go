// Package flatten converts nested records into flat rows with
// deterministic column names.
//
// Nested keys are joined with Separator. Before a leaf is stored its key has
// every "/" replaced by Separator, leading separators stripped and is cut to
// MaxKeyLength characters. Truncated keys are not disambiguated: a later
// path that truncates to an existing key overwrites it, and OnCollision, if
// set, is told about it.
package flatten

import (
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/hibob-extractor/pkg/models"
)

// Defaults used by Flatten.
const (
	DefaultSeparator    = "_"
	DefaultMaxKeyLength = 64
)

// CollisionFunc receives the column name two different paths produced and
// both source paths, earlier one first.
type CollisionFunc func(key, previousPath, path string)

// Flattener holds the flattening rules. The zero value uses the defaults.
type Flattener struct {
	Separator    string
	MaxKeyLength int
	OnCollision  CollisionFunc
}

// New returns a flattener with default rules reporting collisions to fn.
func New(fn CollisionFunc) *Flattener {
	return &Flattener{
		Separator:    DefaultSeparator,
		MaxKeyLength: DefaultMaxKeyLength,
		OnCollision:  fn,
	}
}

// Flatten flattens record with the default rules.
func Flatten(record *models.Record) *models.Record {
	return (&Flattener{}).Flatten(record)
}

// Flatten returns a new flat row. Keys appear in depth-first visit order;
// nested objects without keys contribute nothing. Values other than
// objects, lists included, are stored as they are.
func (f *Flattener) Flatten(record *models.Record) *models.Record {
	out := models.NewRecord(record.Len())
	st := &state{
		f:       f,
		out:     out,
		sources: make(map[string]string, record.Len()),
	}
	st.walk(record, "")
	return out
}

type state struct {
	f   *Flattener
	out *models.Record
	// column -> raw path that produced it
	sources map[string]string
}

func (st *state) walk(r *models.Record, parent string) {
	sep := st.f.separator()
	r.Range(func(key string, value interface{}) bool {
		path := key
		if parent != "" {
			path = parent + sep + key
		}

		switch v := value.(type) {
		case *models.Record:
			st.walk(v, path)
		case map[string]interface{}:
			st.walk(models.RecordFromMap(v), path)
		default:
			st.store(path, value)
		}
		return true
	})
}

func (st *state) store(path string, value interface{}) {
	key := st.f.normalize(path)
	if prev, exists := st.sources[key]; exists && prev != path && st.f.OnCollision != nil {
		st.f.OnCollision(key, prev, path)
	}
	st.sources[key] = path
	st.out.Set(key, value)
}

// normalize applies the column naming rules to a joined path.
func (f *Flattener) normalize(path string) string {
	sep := f.separator()
	key := strings.ReplaceAll(path, "/", sep)
	for strings.HasPrefix(key, sep) {
		key = key[len(sep):]
	}
	return truncate(key, f.maxKeyLength())
}

func (f *Flattener) separator() string {
	if f.Separator == "" {
		return DefaultSeparator
	}
	return f.Separator
}

func (f *Flattener) maxKeyLength() int {
	if f.MaxKeyLength <= 0 {
		return DefaultMaxKeyLength
	}
	return f.MaxKeyLength
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
