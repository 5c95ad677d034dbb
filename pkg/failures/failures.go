// Package failures persists the requests a repository rejected, together with
// the response it gave.
package failures

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sync"

	json "github.com/goccy/go-json"
)

// Artifact formats.
const (
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
)

// Record pairs a rejected request with the repository's response.
// Response is null when the request got no response; Error then explains why.
type Record struct {
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error,omitempty"`
}

// Sink receives failure records in upload order.
type Sink interface {
	Record(rec Record) error
	// Close completes the artifact. It must be called exactly once.
	Close() error
	// Path is the artifact location.
	Path() string
}

// Open creates a sink for path in the given format.
func Open(path, format string) (Sink, error) {
	switch format {
	case FormatJSON:
		return NewMemorySink(path), nil
	case FormatNDJSON, "":
		return NewNDJSONSink(path)
	default:
		return nil, fmt.Errorf("unknown failure artifact format %q (supported: json, ndjson)", format)
	}
}

// Opener returns a function that opens the sink for path when called. Nothing
// is created or truncated before that.
func Opener(path, format string) func() (Sink, error) {
	return func() (Sink, error) {
		return Open(path, format)
	}
}

func normalize(rec Record) Record {
	if len(rec.Request) == 0 {
		rec.Request = json.RawMessage("null")
	}
	if len(rec.Response) == 0 {
		rec.Response = json.RawMessage("null")
	}
	return rec
}

// MemorySink collects records and writes them as one JSON array on Close.
type MemorySink struct {
	mu      sync.Mutex
	path    string
	records []Record
	closed  bool
}

// NewMemorySink creates a sink writing a JSON array to path.
func NewMemorySink(path string) *MemorySink {
	return &MemorySink{path: path, records: make([]Record, 0)}
}

// Record appends rec.
func (s *MemorySink) Record(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("failure sink %s is closed", s.path)
	}
	s.records = append(s.records, normalize(rec))
	return nil
}

// Records returns a copy of the collected records.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Close writes the artifact, an empty array when nothing failed.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // artifact is meant to be read by the operator
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// Path returns the artifact path.
func (s *MemorySink) Path() string {
	return s.path
}

// NDJSONSink writes one JSON object per line as records arrive. The file is
// created when the sink is opened, so it exists even when nothing fails.
type NDJSONSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
	count  int
}

// NewNDJSONSink creates or truncates path.
func NewNDJSONSink(path string) (*NDJSONSink, error) {
	file, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &NDJSONSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Record writes rec and flushes it to the file.
func (s *NDJSONSink) Record(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("failure sink %s is closed", s.path)
	}
	data, err := json.Marshal(normalize(rec))
	if err != nil {
		return fmt.Errorf("failed to encode failure: %w", err)
	}
	if _, err := s.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	s.count++
	return nil
}

// Count returns the number of records written.
func (s *NDJSONSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close flushes and closes the file.
func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", s.path, closeErr)
	}
	return nil
}

// Path returns the artifact path.
func (s *NDJSONSink) Path() string {
	return s.path
}

// ReadFile reads an artifact in either format.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, err
	}

	var records []Record
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return records, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer; records keep slices of line.
		line = append([]byte(nil), line...)
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

var (
	_ Sink = (*MemorySink)(nil)
	_ Sink = (*NDJSONSink)(nil)
)
