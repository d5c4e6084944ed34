// Package meta persists the install identity and the next blob sequence
// number in a two-line file: install id, then sequence.
package meta

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/tally/pkg/storage"
)

// FileName is the metadata file inside the storage directory.
const FileName = "m_meta"

// Record is the persisted metadata.
type Record struct {
	InstallID string
	Sequence  int64
}

// Store reads and updates the metadata file. Methods are safe for
// concurrent use within one process.
type Store struct {
	files *storage.Store
	newID func() string

	mu sync.Mutex
}

// New creates a metadata store on top of files.
func New(files *storage.Store) *Store {
	return &Store{files: files, newID: uuid.NewString}
}

// Get returns the install id and next sequence number. When no metadata
// exists yet, a new install id with sequence 1 is persisted first.
func (s *Store) Get() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.read()
	if err != nil {
		return Record{}, err
	}
	if ok {
		return rec, nil
	}

	rec = Record{InstallID: s.newID(), Sequence: 1}
	if err := s.write(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// AdvanceSequence stores next as the sequence, keeping the install id. A
// missing file is created with a fresh install id.
func (s *Store) AdvanceSequence(next int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.read()
	if err != nil {
		return err
	}
	if !ok {
		rec.InstallID = s.newID()
	}
	rec.Sequence = next
	return s.write(rec)
}

// CreatedAt returns when the metadata file was created. The bool is false,
// and the file is initialised, when no metadata existed before the call.
func (s *Store) CreatedAt() (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok, err := s.files.Exists(FileName)
	if err != nil {
		return time.Time{}, false, err
	}
	if ok {
		empty, err := s.files.IsEmpty(file)
		if err != nil {
			return time.Time{}, false, err
		}
		if !empty {
			created, err := s.files.CreationTime(file)
			if err != nil {
				return time.Time{}, false, err
			}
			return created, true, nil
		}
	}

	if err := s.write(Record{InstallID: s.newID(), Sequence: 1}); err != nil {
		return time.Time{}, false, err
	}
	return time.Time{}, false, nil
}

// read returns ok=false for a missing or empty file.
func (s *Store) read() (Record, bool, error) {
	file, ok, err := s.files.Exists(FileName)
	if err != nil || !ok {
		return Record{}, false, err
	}
	empty, err := s.files.IsEmpty(file)
	if err != nil || empty {
		return Record{}, false, err
	}

	content, err := s.files.ReadAllText(FileName)
	if err != nil {
		return Record{}, false, err
	}
	rec, err := parse(content)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) write(rec Record) error {
	if err := s.files.WriteText(FileName, format(rec)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func format(rec Record) string {
	return rec.InstallID + "\n" + strconv.FormatInt(rec.Sequence, 10)
}

// parse reads the file positionally: line 1 install id, line 2 sequence.
func parse(content string) (Record, error) {
	lines := strings.SplitN(strings.ReplaceAll(content, "\r\n", "\n"), "\n", 3)
	if len(lines) < 2 {
		return Record{}, fmt.Errorf("metadata file has %d line(s), want 2", len(lines))
	}

	installID := strings.TrimSpace(lines[0])
	if installID == "" {
		return Record{}, fmt.Errorf("metadata file has an empty install id")
	}
	seq, err := strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("metadata file has an invalid sequence: %w", err)
	}
	if seq < 1 {
		return Record{}, fmt.Errorf("metadata file has sequence %d, want >= 1", seq)
	}
	return Record{InstallID: installID, Sequence: seq}, nil
}
