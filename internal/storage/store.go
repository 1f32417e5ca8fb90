package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

// ErrBadName is returned for names that would escape the store directory.
var ErrBadName = errors.New("invalid file name")

// FileInfo describes one regular file in the store.
type FileInfo struct {
	Name string
	Size int64
}

// Store is a flat directory of whole files. Chunks are addressed by
// (name, offset) with positioned I/O, so concurrent readers and writers of
// different chunks of the same file never share a file offset.
type Store struct {
	RootDir string
}

// NewStore creates rootDir if needed.
func NewStore(rootDir string) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", rootDir, err)
	}
	return &Store{RootDir: rootDir}, nil
}

// Path maps a file name to its location inside RootDir. Names are single
// path elements; anything with a separator is rejected.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(s.RootDir, name), nil
}

// List returns the regular files directly under RootDir, sorted by name.
// Subdirectories and symlinks are skipped.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.RootDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.RootDir, err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *Store) Has(name string) bool {
	p, err := s.Path(name)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Open opens name for reading. A missing file is protocol.ErrNotFound.
func (s *Store) Open(name string) (*os.File, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", protocol.ErrNotFound, name)
	}
	return f, err
}

// Preallocate creates (or resizes) name to exactly length bytes. New bytes
// read as zero.
func (s *Store) Preallocate(name string, length int64) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("preallocate %s: %w", name, err)
	}
	defer f.Close()
	if err := f.Truncate(length); err != nil {
		return fmt.Errorf("preallocate %s to %d bytes: %w", name, length, err)
	}
	return nil
}

// ReadAt reads exactly size bytes at offset.
func (s *Store) ReadAt(name string, offset, size int64) ([]byte, error) {
	f, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == size) {
		return nil, fmt.Errorf("read %s [%d, %d): %w", name, offset, offset+size, err)
	}
	return buf, nil
}

// WriteAt writes data at offset without truncating the file.
func (s *Store) WriteAt(name string, offset int64, data []byte) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", protocol.ErrNotFound, name)
	}
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, offset); err != nil {
		f.Close()
		return fmt.Errorf("write %s at %d: %w", name, offset, err)
	}
	return f.Close()
}

func (s *Store) Delete(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

func (s *Store) Wipe() error {
	return os.RemoveAll(s.RootDir)
}
