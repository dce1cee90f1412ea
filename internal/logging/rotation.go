package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig controls size-based log rotation.
type RotationConfig struct {
	// MaxSizeMB is the size at which the file is rotated. Zero disables
	// rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept, named {path}.1 (newest)
	// through {path}.N.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotationConfig returns the rotation settings used for long runs.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 64, MaxBackups: 4}
}

// RotatingWriter is an append-only log file that rotates once it would
// exceed its size limit. It is safe for concurrent use.
type RotatingWriter struct {
	mu   sync.Mutex
	path string
	cfg  RotationConfig
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, cfg: cfg}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file, w.size = f, info.Size()
	return nil
}

func (w *RotatingWriter) limit() int64 {
	return int64(w.cfg.MaxSizeMB) << 20
}

// Write appends p, rotating first if p would push the file past its limit.
// A failed rotation is reported on stderr and the write still goes to the
// current file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, fmt.Errorf("write to closed log file %s", w.path)
	}
	if limit := w.limit(); limit > 0 && w.size > 0 && w.size+int64(len(p)) > limit {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "gridflow: log rotation failed: %v\n", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	w.file = nil

	w.shiftBackups()
	first := w.backup(1)
	renameErr := os.Rename(w.path, first)
	if renameErr == nil && w.cfg.Compress {
		if err := gzipFile(first); err != nil {
			fmt.Fprintf(os.Stderr, "gridflow: compress %s: %v\n", first, err)
		}
	}
	if err := w.open(); err != nil {
		return err
	}
	if renameErr != nil {
		return fmt.Errorf("rename log file: %w", renameErr)
	}
	return nil
}

// shiftBackups renames {path}.i to {path}.i+1 from oldest to newest,
// dropping the one that would fall off the end.
func (w *RotatingWriter) shiftBackups() {
	last := max(w.cfg.MaxBackups, 1)
	removeBoth(w.backup(last))
	for i := last - 1; i >= 1; i-- {
		for _, ext := range []string{"", ".gz"} {
			if _, err := os.Stat(w.backup(i) + ext); err == nil {
				_ = os.Rename(w.backup(i)+ext, w.backup(i+1)+ext)
			}
		}
	}
	if w.cfg.MaxBackups <= 0 {
		removeBoth(w.backup(1))
	}
}

func removeBoth(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + ".gz")
}

func (w *RotatingWriter) backup(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path + ".gz")
		}
	}()

	zw := gzip.NewWriter(dst)
	if _, err = io.Copy(zw, src); err != nil {
		return err
	}
	if err = zw.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// Size returns the current file size in bytes.
func (w *RotatingWriter) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Path returns the path of the active file.
func (w *RotatingWriter) Path() string {
	return w.path
}

// Close syncs and closes the file. Closing twice is a no-op.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	return f.Close()
}
