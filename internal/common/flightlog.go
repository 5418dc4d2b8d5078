package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FlightLogEntry records one flight block that a decode session finished,
// successfully or not.
type FlightLogEntry struct {
	Session  string    `json:"session"`
	Source   string    `json:"source,omitempty"`
	FlightID int       `json:"flightId"`
	Status   string    `json:"status"`
	Offset   int64     `json:"offset"`
	Size     int       `json:"size"`
	Samples  int       `json:"samples"`
	Start    time.Time `json:"start,omitempty"`
	Output   string    `json:"output,omitempty"`
	Error    string    `json:"error,omitempty"`
	Ts       time.Time `json:"ts"`
}

// FlightLog provides append-only access to a JSONL flight log.
type FlightLog struct {
	path string
	mu   sync.Mutex
}

// NewFlightLog returns a FlightLog that writes to the provided path.
func NewFlightLog(path string) *FlightLog {
	return &FlightLog{path: path}
}

// Path returns the backing file path for the log.
func (l *FlightLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a new entry to the log, one JSON object per line.
func (l *FlightLog) Append(entry FlightLogEntry) error {
	if l == nil {
		return errors.New("nil flight log")
	}
	if entry.Session == "" {
		return errors.New("flight log entry missing session")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadFlightLog loads every entry from the supplied JSONL file.
func ReadFlightLog(path string) ([]FlightLogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []FlightLogEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry FlightLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode flight log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
