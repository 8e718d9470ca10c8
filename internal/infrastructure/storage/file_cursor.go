package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/ports"
)

// FileCursorStore keeps the cursor as a single line in a text file.
// Operators may truncate or delete the file to force a fresh scan.
type FileCursorStore struct {
	path string
}

var _ ports.CursorStore = (*FileCursorStore)(nil)

// NewFileCursorStore binds the store to path.
func NewFileCursorStore(path string) *FileCursorStore {
	return &FileCursorStore{path: path}
}

// Path returns the backing file location.
func (s *FileCursorStore) Path() string {
	return s.path
}

// Load reads the first line of the file. A missing or blank file yields the empty cursor.
func (s *FileCursorStore) Load(_ context.Context) (domain.Cursor, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read cursor file %s: %w", s.path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	if !scanner.Scan() {
		return "", nil
	}
	return domain.Cursor(strings.TrimSpace(scanner.Text())), nil
}

// Save atomically replaces the file content. Empty cursors are ignored.
func (s *FileCursorStore) Save(_ context.Context, cursor domain.Cursor) error {
	if cursor.IsZero() {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cursor dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(string(cursor)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace cursor file %s: %w", s.path, err)
	}
	return nil
}
