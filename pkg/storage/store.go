package storage

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	dirMode  = 0700
	fileMode = 0600
)

// ErrInvalidName is returned for file names that would escape the directory.
var ErrInvalidName = errors.New("invalid file name")

// ResolveFunc returns the path of the writable storage directory.
type ResolveFunc func() (string, error)

// StaticDir resolves to a fixed path.
func StaticDir(path string) ResolveFunc {
	return func() (string, error) {
		if path == "" {
			return "", fmt.Errorf("storage directory path is empty")
		}
		return path, nil
	}
}

// File is a handle to a file inside the store.
type File struct {
	Name string
	Path string
}

// Store resolves the storage directory lazily and provides the file
// primitives the queue is built from.
type Store struct {
	resolve ResolveFunc

	once sync.Once
	dir  string
	err  error
}

// New creates a Store. The directory is resolved and created on first use.
func New(resolve ResolveFunc) *Store {
	return &Store{resolve: resolve}
}

// Dir resolves, creates and caches the storage directory. A resolution
// failure is permanent for this Store.
func (s *Store) Dir() (string, error) {
	s.once.Do(func() {
		dir, err := s.resolve()
		if err != nil {
			s.err = fmt.Errorf("failed to resolve storage directory: %w", err)
			return
		}
		dir = filepath.Clean(dir)
		if err := os.MkdirAll(dir, dirMode); err != nil {
			s.err = fmt.Errorf("failed to create storage directory: %w", err)
			return
		}
		s.dir = dir
		log.Debug().Str("dir", dir).Msg("Storage directory resolved")
	})
	return s.dir, s.err
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	dir, err := s.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// List enumerates regular files whose names start with prefix, in name
// order. The sequence is lazy and single-use; a missing directory yields
// nothing.
func (s *Store) List(prefix string) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		dir, err := s.Dir()
		if err != nil {
			yield(File{}, err)
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			yield(File{}, fmt.Errorf("failed to read storage directory: %w", err))
			return
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
				continue
			}
			if !yield(File{Name: entry.Name(), Path: filepath.Join(dir, entry.Name())}, nil) {
				return
			}
		}
	}
}

// Names collects the names produced by List.
func (s *Store) Names(prefix string) ([]string, error) {
	var names []string
	for file, err := range s.List(prefix) {
		if err != nil {
			return nil, err
		}
		names = append(names, file.Name)
	}
	return names, nil
}

// Count returns the number of files whose names start with prefix.
func (s *Store) Count(prefix string) (int, error) {
	names, err := s.Names(prefix)
	return len(names), err
}

// AppendText opens or creates name, appends text and syncs it to disk.
func (s *Store) AppendText(name, text string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer file.Close()

	if _, err := io.WriteString(file, text); err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	return file.Close()
}

// WriteText replaces the content of name in place, creating it if needed.
// The file is truncated rather than replaced so its creation time is kept.
func (s *Store) WriteText(name, text string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer file.Close()

	if _, err := io.WriteString(file, text); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	return file.Close()
}

// ReadAllText returns the full content of name.
func (s *Store) ReadAllText(name string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

// Exists returns the handle of name and whether it exists.
func (s *Store) Exists(name string) (File, bool, error) {
	path, err := s.path(name)
	if err != nil {
		return File{}, false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, false, nil
		}
		return File{}, false, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.IsDir() {
		return File{}, false, fmt.Errorf("%s is a directory", name)
	}
	return File{Name: name, Path: path}, true, nil
}

// IsEmpty reports whether the file has no content.
func (s *Store) IsEmpty(file File) (bool, error) {
	info, err := os.Stat(file.Path)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", file.Name, err)
	}
	return info.Size() == 0, nil
}

// CreationTime returns the file's birth time where the platform records
// one, otherwise its modification time.
func (s *Store) CreationTime(file File) (time.Time, error) {
	return creationTime(file.Path)
}

// Remove deletes name. A missing file is not an error.
func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// Rename atomically moves from to to within the directory.
func (s *Store) Rename(from, to string) error {
	src, err := s.path(from)
	if err != nil {
		return err
	}
	dst, err := s.path(to)
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", from, to, err)
	}
	return nil
}
