package flatten

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ajitpratap0/hibob-extractor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) *models.Record {
	t.Helper()
	r := models.NewRecord()
	require.NoError(t, r.UnmarshalJSON([]byte(raw)))
	return r
}

func TestFlattenNested(t *testing.T) {
	row := Flatten(decode(t, `{"id": "1", "personal": {"name": "A"}}`))

	assert.Equal(t, []string{"id", "personal_name"}, row.Keys())
	assert.Equal(t, map[string]interface{}{"id": "1", "personal_name": "A"}, row.ToMap())
}

func TestFlattenKeyRules(t *testing.T) {
	tests := []struct {
		name string
		in   string
		keys []string
	}{
		{name: "slash replaced", in: `{"a/b": 1}`, keys: []string{"a_b"}},
		{name: "nested slash", in: `{"work": {"custom/field": 1}}`, keys: []string{"work_custom_field"}},
		{name: "leading separator", in: `{"_x": 1, "/y": 2}`, keys: []string{"x", "y"}},
		{name: "empty parent", in: `{"": {"z": 1}}`, keys: []string{"z"}},
		{name: "empty nested object", in: `{"a": {}, "b": 1}`, keys: []string{"b"}},
		{name: "lists are leaves", in: `{"tags": [{"k": 1}], "n": null}`, keys: []string{"tags", "n"}},
		{name: "empty record", in: `{}`, keys: []string{}},
		{name: "deep", in: `{"a": {"b": {"c": {"d": true}}}}`, keys: []string{"a_b_c_d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := Flatten(decode(t, tt.in))
			assert.Equal(t, tt.keys, row.Keys())
		})
	}
}

func TestFlattenTruncatesTo64(t *testing.T) {
	long := strings.Repeat("x", 80)
	row := Flatten(decode(t, `{"`+long+`": 1, "p": {"`+long+`": 2}}`))

	for _, k := range row.Keys() {
		assert.LessOrEqual(t, len([]rune(k)), 64)
	}
	assert.Equal(t, []string{strings.Repeat("x", 64), "p_" + strings.Repeat("x", 62)}, row.Keys())
}

func TestFlattenTruncatesRunes(t *testing.T) {
	long := strings.Repeat("é", 70)
	row := Flatten(decode(t, `{"`+long+`": 1}`))

	require.Equal(t, 1, row.Len())
	assert.Equal(t, strings.Repeat("é", 64), row.Keys()[0])
}

func TestFlattenCollisionLaterWins(t *testing.T) {
	prefix := strings.Repeat("k", 64)
	var reported [][3]string
	f := New(func(key, prev, path string) {
		reported = append(reported, [3]string{key, prev, path})
	})

	row := f.Flatten(decode(t, `{"`+prefix+`a": 1, "`+prefix+`b": 2, "other": 3}`))

	assert.Equal(t, []string{prefix, "other"}, row.Keys())
	v, _ := row.Get(prefix)
	assert.Equal(t, json.Number("2"), v)
	require.Len(t, reported, 1)
	assert.Equal(t, [3]string{prefix, prefix + "a", prefix + "b"}, reported[0])
}

func TestFlattenIsIdempotent(t *testing.T) {
	inputs := []string{
		`{"id": "1", "personal": {"name": "A", "a/b": {"c": [1, 2]}}}`,
		`{"x": {"y": {"_z": null}}, "q": "v"}`,
		`{"` + strings.Repeat("n", 70) + `": {"m": 1}}`,
	}

	for _, in := range inputs {
		once := Flatten(decode(t, in))
		twice := Flatten(once)
		assert.Equal(t, once.Keys(), twice.Keys())
		assert.Equal(t, once.ToMap(), twice.ToMap())

		for _, k := range once.Keys() {
			assert.NotContains(t, k, "/")
			assert.False(t, strings.HasPrefix(k, "_"), k)
			assert.LessOrEqual(t, len([]rune(k)), 64)
		}
	}
}

func TestFlattenPlainMaps(t *testing.T) {
	r := models.NewRecord()
	r.Set("id", "7")
	r.Set("about", map[string]interface{}{"hobbies": "chess", "avatar": map[string]interface{}{"url": "u"}})

	row := Flatten(r)
	assert.Equal(t, []string{"id", "about_avatar_url", "about_hobbies"}, row.Keys())
}

func TestFlattenCustomSeparator(t *testing.T) {
	f := &Flattener{Separator: ".", MaxKeyLength: 8}
	row := f.Flatten(decode(t, `{"a": {"b/c": 1, "longer_name": 2}}`))
	assert.Equal(t, []string{"a.b.c", "a.longer"}, row.Keys())
}
