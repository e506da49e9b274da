package watchlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore keeps the log as an indented JSON array in a single file.
// Every write rewrites the whole file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) LoadAll(_ context.Context) ([]Entry, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "file watch log: read")
	}
	if len(b) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, errors.Wrapf(err, "file watch log: parse %s", s.path)
	}
	return entries, nil
}

func (s *FileStore) SaveAll(_ context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "file watch log: marshal")
	}
	// readers never see a partially written file
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".watchlog-*")
	if err != nil {
		return errors.Wrap(err, "file watch log: create temp")
	}
	if err := tmp.Chmod(s.mode()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "file watch log: chmod")
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "file watch log: write")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "file watch log: close")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "file watch log: rename")
	}
	return nil
}

// mode keeps the permissions of an existing log across rewrites.
func (s *FileStore) mode() os.FileMode {
	if fi, err := os.Stat(s.path); err == nil {
		return fi.Mode().Perm()
	}
	return 0o644
}

func (s *FileStore) Append(ctx context.Context, e Entry) error {
	entries, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	return s.SaveAll(ctx, append(entries, e))
}
