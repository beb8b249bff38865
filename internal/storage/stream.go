package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opextools/portal_agent/internal/portal"
)

const streamHeader = "cpf;status;mensagem\n"

// StreamLog is the line-per-record progress file. Creating the log
// truncates the file and writes the header; every append opens, writes,
// and closes the file so partial output survives a crash.
type StreamLog struct {
	path string
}

// NewStreamLog creates or truncates the stream file at path.
func NewStreamLog(path string) (*StreamLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create stream directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create stream log: %w", err)
	}
	if _, err := f.WriteString(streamHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write stream header: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close stream log: %w", err)
	}

	return &StreamLog{path: path}, nil
}

// Append writes one result line and flushes it to disk.
func (s *StreamLog) Append(res portal.Result) error {
	line := fmt.Sprintf("%s;%s;%s\n",
		sanitizeField(res.CPF), sanitizeField(res.Status), sanitizeField(res.Mensagem))

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open stream log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("append stream log: %w", err)
	}
	return f.Close()
}

// Path returns the stream file location.
func (s *StreamLog) Path() string {
	return s.path
}

// sanitizeField keeps the stream parseable as a three-column file.
func sanitizeField(v string) string {
	v = strings.ReplaceAll(v, ";", ",")
	v = strings.ReplaceAll(v, "\r", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	return v
}
