package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshotter persists the full record set of a MemoryIndex as one unit.
type Snapshotter interface {
	// Load returns the stored records, or none if nothing was saved yet.
	Load(ctx context.Context) ([]Record, error)
	// Save replaces the stored records.
	Save(ctx context.Context, records []Record) error
	// Location describes where the snapshot lives.
	Location() string
}

// SnapshotFile is the file name used inside a snapshot directory.
const SnapshotFile = "index.json"

// FileSnapshot stores the snapshot as a JSON array in dir/index.json.
// Writes go to a temporary file that is renamed into place.
type FileSnapshot struct {
	dir  string
	path string
}

// NewFileSnapshot creates dir if needed.
func NewFileSnapshot(dir string) (*FileSnapshot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Location: dir, Err: err}
	}
	return &FileSnapshot{dir: dir, path: filepath.Join(dir, SnapshotFile)}, nil
}

func (f *FileSnapshot) Location() string { return f.path }

func (f *FileSnapshot) Load(_ context.Context) ([]Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Location: f.path, Err: err}
	}
	return decodeRecords(data, f.path)
}

func (f *FileSnapshot) Save(_ context.Context, records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return &StorageError{Op: "encode", Location: f.path, Err: err}
	}

	tmp, err := os.CreateTemp(f.dir, SnapshotFile+".*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Location: f.path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StorageError{Op: "write", Location: f.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "write", Location: f.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return &StorageError{Op: "rename", Location: f.path, Err: err}
	}
	return nil
}

func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}

func decodeRecords(data []byte, location string) ([]Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &StorageError{Op: "decode", Location: location, Err: fmt.Errorf("corrupt snapshot: %w", err)}
	}
	return records, nil
}
