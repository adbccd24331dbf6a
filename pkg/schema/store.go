package schema

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
)

// Store loads and persists schema state.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// FileStore reads state from one file and writes it to another, matching
// the in/ and out/ folders of a data directory. Both may be the same path.
type FileStore struct {
	InPath  string
	OutPath string
}

// NewFileStore creates a store reading inPath and writing outPath.
func NewFileStore(inPath, outPath string) *FileStore {
	return &FileStore{InPath: inPath, OutPath: outPath}
}

// Load returns the stored state, or an empty state on the first run.
func (fs *FileStore) Load(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fs.InPath)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state file").
			WithDetail("path", fs.InPath)
	}

	state := NewState()
	if err := state.UnmarshalJSON(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse state file").
			WithDetail("path", fs.InPath)
	}
	return state, nil
}

// Save replaces the output file atomically: the state is written to a
// temporary file in the same folder and renamed over the target.
func (fs *FileStore) Save(ctx context.Context, state *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := state.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode state")
	}

	dir := filepath.Dir(fs.OutPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create state folder").
			WithDetail("path", dir)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary state file").
			WithDetail("path", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state file").
			WithDetail("path", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to sync state file").
			WithDetail("path", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close state file").
			WithDetail("path", tmpName)
	}
	if err := os.Rename(tmpName, fs.OutPath); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to replace state file").
			WithDetail("path", fs.OutPath)
	}
	return nil
}
