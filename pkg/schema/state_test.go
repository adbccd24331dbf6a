package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	"github.com/ajitpratap0/hibob-extractor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(keys ...string) *models.Record {
	r := models.NewRecord(len(keys))
	for _, k := range keys {
		r.Set(k, "v")
	}
	return r
}

func TestObserveAppendsInFirstSeenOrder(t *testing.T) {
	s := NewState()

	assert.Equal(t, []string{"id", "personal_name"}, s.Observe("employees", row("id", "personal_name")))
	assert.Nil(t, s.Observe("employees", row("personal_name", "id")))
	assert.Equal(t, []string{"work_title"}, s.Observe("employees", row("work_title", "id")))

	// a row lacking known columns leaves them in place
	assert.Nil(t, s.Observe("employees", row("id")))
	assert.Equal(t, []string{"id", "personal_name", "work_title"}, s.Columns("employees"))
	assert.Nil(t, s.Columns("employee_lifecycle"))
}

func TestColumnsNeverShrink(t *testing.T) {
	s := NewState()
	batches := [][]string{{"a", "b"}, {"c"}, {}, {"b", "d", "a"}, {"e", "c"}}

	prev := 0
	for _, b := range batches {
		s.Observe("t", row(b...))
		n := len(s.Columns("t"))
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, s.Columns("t"))
}

func TestColumnsReturnsCopy(t *testing.T) {
	s := NewState()
	s.Observe("t", row("a"))
	cols := s.Columns("t")
	cols[0] = "mutated"
	assert.Equal(t, []string{"a"}, s.Columns("t"))
}

func TestStateJSON(t *testing.T) {
	s := NewState()
	require.NoError(t, s.UnmarshalJSON([]byte(`{
		"employees": ["id", "personal_name", "id"],
		"employee_lifecycle": [],
		"component": {"version": 2},
		"note": null
	}`)))

	assert.Equal(t, []string{"employee_lifecycle", "employees"}, s.Tables())
	assert.Equal(t, []string{"id", "personal_name"}, s.Columns("employees"))

	out, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"employees": ["id", "personal_name"],
		"employee_lifecycle": [],
		"component": {"version": 2},
		"note": null
	}`, string(out))
}

func TestStateUnmarshalRejectsNonObject(t *testing.T) {
	s := NewState()
	err := s.UnmarshalJSON([]byte(`["employees"]`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	require.NoError(t, s.UnmarshalJSON([]byte("  ")))
	assert.Empty(t, s.Tables())
}

func TestFileStoreFirstRun(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "in", "state.json"), filepath.Join(dir, "out", "state.json"))

	s, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Tables())
}

func TestFileStoreCorruptState(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"employees": [`), 0o600))

	_, err := NewFileStore(in, in).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

// Two runs where the second introduces one field: the column list is the
// first run's list with exactly that field appended.
func TestFileStoreAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewFileStore(path, path)
	ctx := context.Background()

	run1, err := store.Load(ctx)
	require.NoError(t, err)
	run1.Observe("employees", row("id", "personal_name"))
	require.NoError(t, store.Save(ctx, run1))

	run2, err := store.Load(ctx)
	require.NoError(t, err)
	run2.Observe("employees", row("id", "work_title", "personal_name"))
	require.NoError(t, store.Save(ctx, run2))

	final, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "personal_name", "work_title"}, final.Columns("employees"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStoreSaveCreatesFolder(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out", "nested", "state.json")
	s := NewState()
	s.Observe("employees", row("id"))

	require.NoError(t, NewFileStore("", out).Save(context.Background(), s))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"employees": ["id"]}`, string(data))
}

func TestFileStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewFileStore("in.json", "out.json")

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Save(ctx, NewState()), context.Canceled)
}
