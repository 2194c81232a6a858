// Package storage provides the durable backends for the session
// document: a local file and an S3 object.
package storage

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/utils"
)

// FileStore persists the session document to a local file.
type FileStore struct {
	path    string
	fileMgr utils.FileManager
}

// NewFileStore creates a FileStore. An empty path falls back to the
// default session file name.
func NewFileStore(path string, fileMgr utils.FileManager) (*FileStore, error) {
	if path == "" {
		path = base.SessionStateFile
	}
	if fileMgr == nil {
		return nil, errors.New("requires file manager")
	}
	return &FileStore{path: path, fileMgr: fileMgr}, nil
}

// Read implements base.Storage.
func (f *FileStore) Read(_ context.Context) ([]byte, error) {
	data, err := f.fileMgr.ReadFile(f.path)
	if os.IsNotExist(errors.Cause(err)) {
		return nil, base.ErrNotExist
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", f.path)
	}
	return data, nil
}

// Write implements base.Storage.
func (f *FileStore) Write(_ context.Context, data []byte) error {
	if err := f.fileMgr.WriteFile(f.path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", f.path)
	}
	return nil
}
