package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/annealcycle/internal/cycle"
)

const traceFile = "trace.jsonl"

// TraceEntry is one line of a job's cost history.
type TraceEntry struct {
	Iteration   int        `json:"iteration"`
	Temperature float64    `json:"temperature,omitempty"`
	CurrentCost cycle.Cost `json:"currentCost"`
	BestCost    cycle.Cost `json:"bestCost"`
	Timestamp   time.Time  `json:"timestamp"`

	// Order is the best ordering at this point. Usually omitted to keep
	// traces small.
	Order []int `json:"order,omitempty"`
}

// TracePath returns the trace location for a job under baseDir.
func TracePath(baseDir, jobID string) string {
	return filepath.Join(baseDir, "jobs", jobID, traceFile)
}

// TraceWriter appends entries to a JSONL trace file. It buffers writes and
// is safe for concurrent use.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// NewTraceWriter opens the trace for jobID, truncating it unless appendMode
// is set.
func NewTraceWriter(baseDir, jobID string, appendMode bool) (*TraceWriter, error) {
	path := TracePath(baseDir, jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriterSize(file, 64*1024)
	return &TraceWriter{
		file: file,
		buf:  buf,
		enc:  json.NewEncoder(buf),
		path: path,
	}, nil
}

// Write buffers one entry. Encoder.Encode terminates it with a newline.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads entries back from a trace file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace for jobID. It returns a NotFoundError if
// the job has no trace.
func NewTraceReader(baseDir, jobID string) (*TraceReader, error) {
	file, err := os.Open(TracePath(baseDir, jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// entries with an order can be long
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry, or io.EOF at the end of the trace.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace file for the given job.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, jobID string) error {
	err := os.Remove(TracePath(baseDir, jobID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
