package accesslog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// subjectLogWriter appends entries of one subject to a size-rotated file
type subjectLogWriter struct {
	mu          sync.Mutex
	logDir      string
	file        *os.File
	currentFile string
	currentSize int64
}

func newSubjectLogWriter(logDir string) (*subjectLogWriter, error) {
	if err := os.MkdirAll(logDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &subjectLogWriter{logDir: logDir}
	if err := w.openLogFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *subjectLogWriter) writeEntry(entry AccessLogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	data = append(data, '\n')

	if w.currentSize+int64(len(data)) > MaxLogSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := w.file.Write(data)
	w.currentSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

func (w *subjectLogWriter) openLogFile() error {
	logPath := filepath.Join(w.logDir, "access.log")

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, LogFilePermission)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.currentFile = logPath
	w.currentSize = stat.Size()
	return nil
}

// rotate moves the current file aside as access_<timestamp>.log and keeps at most MaxLogFiles of them
func (w *subjectLogWriter) rotate() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	rotated := filepath.Join(w.logDir, fmt.Sprintf("access_%s.log", time.Now().UTC().Format("20060102_150405.000000")))
	if err := os.Rename(w.currentFile, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if err := w.cleanOldLogs(); err != nil {
		return fmt.Errorf("failed to clean old logs: %w", err)
	}
	return w.openLogFile()
}

func (w *subjectLogWriter) cleanOldLogs() error {
	rotated, err := rotatedLogs(w.logDir)
	if err != nil {
		return err
	}
	if len(rotated) <= MaxLogFiles {
		return nil
	}

	for _, name := range rotated[:len(rotated)-MaxLogFiles] {
		if err := os.Remove(filepath.Join(w.logDir, name)); err != nil {
			return fmt.Errorf("failed to remove old log file: %w", err)
		}
	}
	return nil
}

func (w *subjectLogWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotatedLogs lists rotated files oldest first
func rotatedLogs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && e.Name() != "access.log" && filepath.Ext(e.Name()) == ".log" {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}
