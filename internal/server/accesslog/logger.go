package accesslog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AccessLogger keeps a per-subject json-lines log of upload api calls under baseDir/<subject>/
type AccessLogger struct {
	baseDir string
	logger  *slog.Logger

	mu      sync.Mutex
	writers map[string]*subjectLogWriter
}

func New(baseDir string, logger *slog.Logger) (*AccessLogger, error) {
	if err := os.MkdirAll(baseDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &AccessLogger{
		baseDir: baseDir,
		writers: make(map[string]*subjectLogWriter),
		logger:  logger.With("component", "access_logger"),
	}, nil
}

// Log appends entry to the log of entry.Subject. Failures are logged, not returned.
func (al *AccessLogger) Log(entry AccessLogEntry) {
	if entry.Subject == "" {
		entry.Subject = "anonymous"
	}

	if err := al.write(entry); err != nil {
		al.logger.Error("failed to write access log", "subject", entry.Subject, "path", entry.Path, "error", err)
	}
}

func (al *AccessLogger) write(entry AccessLogEntry) error {
	al.mu.Lock()
	writer, ok := al.writers[entry.Subject]
	if !ok {
		var err error
		writer, err = newSubjectLogWriter(filepath.Join(al.baseDir, sanitizeSubject(entry.Subject)))
		if err != nil {
			al.mu.Unlock()
			return err
		}
		al.writers[entry.Subject] = writer
	}
	al.mu.Unlock()

	return writer.writeEntry(entry)
}

// Entries returns up to limit most recent entries of subject, oldest first
func (al *AccessLogger) Entries(subject string, limit int) ([]AccessLogEntry, error) {
	dir := filepath.Join(al.baseDir, sanitizeSubject(subject))

	files, err := rotatedLogs(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []AccessLogEntry{}, nil
	} else if err != nil {
		return nil, err
	}
	files = append(files, "access.log")

	var entries []AccessLogEntry
	for i := len(files) - 1; i >= 0 && len(entries) < limit; i-- {
		fileEntries, err := readLogFile(filepath.Join(dir, files[i]))
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			al.logger.Warn("failed to read log file", "file", files[i], "error", err)
			continue
		}
		entries = append(fileEntries, entries...)
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (al *AccessLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	var errs []error
	for subject, writer := range al.writers {
		if err := writer.close(); err != nil {
			errs = append(errs, fmt.Errorf("close log of %s: %w", subject, err))
		}
	}
	clear(al.writers)
	return errors.Join(errs...)
}

func readLogFile(path string) ([]AccessLogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []AccessLogEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry AccessLogEntry
		// skip torn lines left by a crash
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// sanitizeSubject converts a token subject to a filesystem-safe directory name
func sanitizeSubject(subject string) string {
	result := make([]byte, 0, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '@' || c == '.' || c == '-' || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	if s := string(result); s != "." && s != ".." {
		return s
	}
	return "_"
}
