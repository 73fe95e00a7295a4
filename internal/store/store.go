package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// filePermissions is the mode of the settings file.
const filePermissions = 0600

// keyPattern matches the names the dotenv parser accepts.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// Store is a KEY=VALUE settings file with an in-memory copy.
//
// The file is parsed with dotenv rules, so $VAR and ${VAR} inside
// unquoted or double-quoted values are expanded on read, VAR being an
// upper-case key defined earlier in the file. Set rewrites the
// whole file from the parsed values: a hand-edited reference is replaced
// by its expansion. Use single quotes, or escape it as \$, to keep a
// literal dollar sign. Values written by Set are escaped and round-trip.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Set holds the write lock across read, merge and replace of the file.
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

// Open loads the settings file at path. A missing file is an empty store;
// it is created on the first Set.
func Open(path string) (*Store, error) {
	values, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, values: values}, nil
}

// readFile parses path, treating a missing file as empty.
func readFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrConfigFault, path, err)
	}
	return values, nil
}

// Path returns the location of the settings file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value for key, or def when the key is absent or empty.
func (s *Store) Get(key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[key]; ok && v != "" {
		return v
	}
	return def
}

// GetInt returns the integer value for key, or def when the key is absent
// or empty. A present value that is not an integer yields def and an error
// wrapping ErrConfigFault.
func (s *Store) GetInt(key string, def int) (int, error) {
	raw := s.Get(key, "")
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q is not an integer", ErrConfigFault, key, raw)
	}
	return n, nil
}

// Set stores value under key and rewrites the file.
//
// The file is re-read under the lock before writing, so keys edited by
// hand since Open are kept. The new content is written to a temporary
// file in the same directory and renamed over the old one. On failure
// the in-memory copy is left unchanged.
func (s *Store) Set(key, value string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %w: %q", ErrConfigFault, ErrInvalidKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := readFile(s.path)
	if err != nil {
		return err
	}
	current[key] = value

	if err := writeAtomic(s.path, current); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrConfigFault, s.path, err)
	}

	s.values = current
	return nil
}

// writeAtomic marshals values and replaces path with the result.
func writeAtomic(path string, values map[string]string) error {
	content, err := godotenv.Marshal(values)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op after a successful rename

	if _, err := tmp.WriteString(content + "\n"); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Keys returns every key in the store, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
