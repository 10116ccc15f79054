package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ryabkov82/ride-booking-ingest/internal/source"
)

// FailureEntry is one line of the failures file
type FailureEntry struct {
	LineNo    int64         `json:"lineNo"`
	Kind      Kind          `json:"kind"`
	Malformed bool          `json:"malformed"`
	Status    int           `json:"status,omitempty"`
	Message   string        `json:"message"`
	Record    source.Record `json:"record"`
	TS        time.Time     `json:"ts"`
}

// FailureLog appends failed records to a JSONL file so they can be inspected
// or replayed after the run
type FailureLog struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

// OpenFailureLog opens path for appending, creating it if needed
func OpenFailureLog(path string) (*FailureLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open failures file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &FailureLog{file: f, w: w, enc: json.NewEncoder(w)}, nil
}

// Write appends one entry for rec
func (l *FailureLog) Write(rec source.Record, out Outcome) error {
	entry := FailureEntry{
		LineNo:    rec.LineNo,
		Kind:      out.Kind,
		Malformed: rec.IsError(),
		Status:    out.StatusCode,
		Record:    rec,
		TS:        time.Now().UTC(),
	}
	if httpErr, ok := GetHTTPError(out.Err); ok {
		entry.Message = httpErr.Body
	} else if out.Err != nil {
		entry.Message = out.Err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(entry)
}

// Close flushes buffered entries and closes the file
func (l *FailureLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Flush(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("flush failures file: %w", err)
	}
	return l.file.Close()
}
