// Package storage manages the on-disk download output directory.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileMissing reports that a job's output file is no longer on disk.
var ErrFileMissing = errors.New("output file missing")

// Store resolves job output files inside a single managed directory.
type Store struct {
	dir string
}

// NewStore creates the output directory if needed and returns a store rooted
// at it.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve downloads dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create downloads dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute output directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Resolve maps a stored base filename to its absolute path. Names that would
// escape the directory are rejected.
func (s *Store) Resolve(filename string) (string, error) {
	if filename == "" {
		return "", ErrFileMissing
	}
	if strings.Contains(filename, "/") || strings.Contains(filename, "\\") || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid output filename %q", filename)
	}

	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileMissing
		}
		return "", fmt.Errorf("failed to stat output file: %w", err)
	}
	return path, nil
}

// Size returns the size of a stored output file in bytes.
func (s *Store) Size(filename string) (int64, error) {
	path, err := s.Resolve(filename)
	if err != nil {
		return 0, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat output file: %w", err)
	}
	return stat.Size(), nil
}

// Remove deletes a stored output file. Removing a file that is already gone
// is not an error.
func (s *Store) Remove(filename string) error {
	path, err := s.Resolve(filename)
	if errors.Is(err, ErrFileMissing) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove output file: %w", err)
	}
	return nil
}
