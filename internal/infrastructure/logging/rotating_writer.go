package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const defaultLogSizeMB = 100

// RotatingWriter appends slog output to a file and starts a new one once the
// current file reaches its size limit. Old files are kept as path.1 (newest)
// through path.N; with no backups the full file is discarded.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	limit   int64
	keep    int
	out     *os.File
	written int64
}

func NewRotatingWriter(path string, maxSizeMB, maxBackups int) (*RotatingWriter, error) {
	if path == "" {
		return nil, errors.New("log file path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultLogSizeMB
	}
	return newRotatingWriter(path, int64(maxSizeMB)<<20, max(maxBackups, 0))
}

func newRotatingWriter(path string, limit int64, keep int) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, limit: limit, keep: keep}
	if err := w.reopen(); err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.out == nil {
		if err := w.reopen(); err != nil {
			return 0, err
		}
	}
	if w.full(len(p)) {
		if err := w.roll(); err != nil {
			return 0, fmt.Errorf("rotate log file %s: %w", w.path, err)
		}
	}

	n, err := w.out.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.release()
}

// full reports whether appending n bytes would cross the limit. A record
// larger than the limit still goes to an empty file rather than looping.
func (w *RotatingWriter) full(n int) bool {
	return w.limit > 0 && w.written > 0 && w.written+int64(n) > w.limit
}

func (w *RotatingWriter) reopen() error {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.out, w.written = f, st.Size()
	return nil
}

func (w *RotatingWriter) release() error {
	if w.out == nil {
		return nil
	}
	err := w.out.Close()
	w.out, w.written = nil, 0
	return err
}

// roll closes the live file, shifts the backups up by one and reopens an
// empty file at path.
func (w *RotatingWriter) roll() error {
	_ = w.release()

	if w.keep == 0 {
		if err := os.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	} else {
		if err := os.Remove(backupPath(w.path, w.keep)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		for n := w.keep - 1; n >= 0; n-- {
			from := w.path
			if n > 0 {
				from = backupPath(w.path, n)
			}
			if err := os.Rename(from, backupPath(w.path, n+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}
	return w.reopen()
}

func backupPath(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}
