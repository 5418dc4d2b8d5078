package jpi

import (
	"fmt"
	"os"
)

// Decode decodes a complete JPI file held in memory. The returned File is
// never nil; when err is non-nil it holds whatever was decoded before the
// failure.
func Decode(data []byte, opts Options) (*File, error) {
	s := newCompleteSession(data, opts)
	if s.metrics != nil {
		s.metrics.Start()
		defer s.metrics.Stop()
	}
	_, err := s.Advance()
	f := &File{
		Header:  s.header,
		Flights: s.flights,
		Excess:  s.excess,
		Status:  StatusComplete,
		Err:     err,
	}
	if s.state != StateComplete {
		f.Status = StatusInvalid
	}
	return f, err
}

// DecodeFile reads and decodes the file at path.
func DecodeFile(path string, opts Options) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data, opts)
	if err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
