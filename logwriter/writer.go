package logwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout renders record timestamps, e.g. "2024-05-01 13:04:05.123456".
const TimestampLayout = "2006-01-02 15:04:05.000000"

// FileTimeLayout is the time suffix of record file names.
const FileTimeLayout = "2006-01-02_15-04"

// Writer appends timestamped lines to a file that stays open for the life
// of the process. Every write is synced before it returns.
//
// Writer is not safe for concurrent use; callers serialize access.
type Writer struct {
	file *os.File
	path string
}

// FileName returns "<prefix>_<YYYY-MM-DD_HH-MM>.txt".
func FileName(prefix string, t time.Time) string {
	return prefix + "_" + t.Format(FileTimeLayout) + ".txt"
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &Writer{file: f, path: path}, nil
}

// OpenPrimary opens dir/log_<time>.txt.
func OpenPrimary(dir string, t time.Time) (*Writer, error) {
	return Open(filepath.Join(dir, FileName("log", t)))
}

// OpenStatistics opens dir/log_stats_<time>.txt and writes the header line
// recording the group size.
func OpenStatistics(dir string, t time.Time, groupSize int) (*Writer, error) {
	w, err := Open(filepath.Join(dir, FileName("log_stats", t)))
	if err != nil {
		return nil, err
	}
	if err := w.WriteLine(fmt.Sprintf("Group size: %d", groupSize)); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Record appends "<timestamp>: <message>".
func (w *Writer) Record(message string, at time.Time) error {
	return w.WriteLine(at.Format(TimestampLayout) + ": " + message)
}

// RecordBlock records each line of block with the same timestamp.
func (w *Writer) RecordBlock(block string, at time.Time) error {
	var b strings.Builder
	stamp := at.Format(TimestampLayout)
	for _, line := range strings.Split(strings.TrimRight(block, "\n"), "\n") {
		b.WriteString(stamp)
		b.WriteString(": ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return w.write(b.String())
}

// WriteLine appends line without a timestamp.
func (w *Writer) WriteLine(line string) error {
	return w.write(line + "\n")
}

func (w *Writer) write(s string) error {
	if _, err := w.file.WriteString(s); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	return nil
}

// Close closes the file.
func (w *Writer) Close() error {
	return w.file.Close()
}
