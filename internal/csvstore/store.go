package csvstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrHeaderMismatch means the table being saved shares no column names
	// with the existing store, so a remap would append only blank rows.
	ErrHeaderMismatch = errors.New("table headers share no columns with store")

	// ErrStoreUnwritable wraps I/O and permission failures on the store file.
	ErrStoreUnwritable = errors.New("store unwritable")

	// ErrStoreNotFound means no store file exists yet at the path.
	ErrStoreNotFound = errors.New("store file does not exist")
)

// Store appends accepted rows to CSV files. The first save to a path writes
// the header line; that line is never rewritten. Later saves with a
// different header set are remapped by column name into the store's order:
// store columns missing from the incoming table are written empty, incoming
// columns unknown to the store are dropped. Concurrent saves to the same
// path are serialized; distinct paths append independently.
type Store struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store.
func New() *Store {
	return &Store{locks: make(map[string]*sync.Mutex)}
}

// pathLock returns the mutex guarding one store file.
func (s *Store) pathLock(path string) *sync.Mutex {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Append merges rows into the store at path, creating it on first use.
// Returns the number of data rows written. Rows shorter than the header set
// are padded with empty cells, longer ones truncated, so the file always
// has a uniform column count.
func (s *Store) Append(path string, headers []string, rows [][]string) (int, error) {
	if len(headers) == 0 {
		return 0, fmt.Errorf("%w: no headers to write", ErrHeaderMismatch)
	}

	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := readHeaderLine(path)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if existing == nil {
		// Fresh store: the incoming headers become the permanent header line.
		if err := w.Write(headers); err != nil {
			return 0, fmt.Errorf("%w: encoding header line: %v", ErrStoreUnwritable, err)
		}
		existing = headers
	}

	remap, err := columnRemap(existing, headers)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		out := make([]string, len(existing))
		for i, src := range remap {
			if src >= 0 && src < len(row) {
				out[i] = row[src]
			}
		}
		if err := w.Write(out); err != nil {
			return 0, fmt.Errorf("%w: encoding row: %v", ErrStoreUnwritable, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnwritable, err)
	}

	// Everything is staged in memory; a single write keeps partial rows out
	// of the file on failure.
	if err := appendBytes(path, buf.Bytes()); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Export returns the raw CSV bytes of the store.
func (s *Store) Export(path string) ([]byte, error) {
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	return data, nil
}

// readHeaderLine returns the store's header record, or nil when the file is
// missing or empty (both mean the next save initializes it).
func readHeaderLine(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening store: %v", ErrStoreUnwritable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading store header: %v", ErrStoreUnwritable, err)
	}
	return header, nil
}

// columnRemap maps each store column to the index of the incoming column
// feeding it, or -1 for an empty cell. Identical name-and-order header sets
// map straight through; otherwise matching is by name, and a save with zero
// matching names is rejected.
func columnRemap(store, incoming []string) ([]int, error) {
	remap := make([]int, len(store))
	if equalHeaders(store, incoming) {
		for i := range remap {
			remap[i] = i
		}
		return remap, nil
	}

	byName := make(map[string]int, len(incoming))
	for i, h := range incoming {
		if _, dup := byName[h]; !dup {
			byName[h] = i
		}
	}

	matched := false
	for i, h := range store {
		if src, ok := byName[h]; ok {
			remap[i] = src
			matched = true
		} else {
			remap[i] = -1
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: store columns %v, table columns %v", ErrHeaderMismatch, store, incoming)
	}
	return remap, nil
}

func equalHeaders(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// appendBytes writes data to the end of the file in one call, creating the
// file and its directory as needed, and syncs before returning.
func appendBytes(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: creating store directory: %v", ErrStoreUnwritable, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening store for append: %v", ErrStoreUnwritable, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: writing rows: %v", ErrStoreUnwritable, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: syncing store: %v", ErrStoreUnwritable, err)
	}
	return nil
}
