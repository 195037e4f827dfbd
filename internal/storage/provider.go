// Package storage is a root-confined file store used by the import inbox and
// the export command.
package storage

import "time"

// File describes one stored file.
type File struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Provider is the interface for file operations relative to a root directory.
type Provider interface {
	// List returns the .json files directly inside dir, sorted by path.
	List(dir string) ([]File, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
	// Abs resolves path against the root.
	Abs(path string) (string, error)
}
