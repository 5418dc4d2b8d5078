package jpi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"example.com/edmgate/internal/common"
)

// ErrInputClosed is returned by Write after CloseInput.
var ErrInputClosed = errors.New("jpi: session input closed")

// State is the position of a Session in the file layout.
type State int

const (
	StateAwaitingFileHeader State = iota
	StateAwaitingFlightHeader
	StateDecodingSamples
	StateComplete
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateAwaitingFileHeader:
		return "awaiting-file-header"
	case StateAwaitingFlightHeader:
		return "awaiting-flight-header"
	case StateDecodingSamples:
		return "decoding-samples"
	case StateComplete:
		return "complete"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Options tune a decode session.
type Options struct {
	MaskMode MaskMode
	// MinHeaderBytes is buffered from a live source before the header is
	// first parsed. Zero means MinHeaderBytes; negative disables the wait.
	MinHeaderBytes int
	// HeadersOnly records flight headers and skips sample bodies.
	HeadersOnly bool
	Metrics     *common.Metrics
}

func (o Options) minHeader() int {
	switch {
	case o.MinHeaderBytes == 0:
		return MinHeaderBytes
	case o.MinHeaderBytes < 0:
		return 0
	default:
		return o.MinHeaderBytes
	}
}

// Progress summarizes one Advance call.
type Progress struct {
	State    State
	Consumed int
	Records  int
	Flights  int
	// Waiting is true when decoding stopped for lack of bytes.
	Waiting bool
}

// Session decodes a JPI byte stream incrementally. Bytes arrive through
// Write; Advance decodes as far as the buffered bytes allow and can be
// called again after every Write. Methods are safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	id      uuid.UUID
	opts    Options
	buf     []byte
	final   bool
	cursor  int
	state   State
	header  *FileHeader
	flights []*Flight
	next    int
	cur     *flightAssembler
	excess  int
	err     error
	metrics *common.Metrics
}

func NewSession(opts Options) *Session {
	return &Session{id: uuid.New(), opts: opts, metrics: opts.Metrics}
}

// newCompleteSession wraps an already complete buffer without copying it.
func newCompleteSession(data []byte, opts Options) *Session {
	s := NewSession(opts)
	s.buf = data
	s.final = true
	return s
}

func (s *Session) ID() string { return s.id.String() }

func (s *Session) SetMetrics(m *common.Metrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// Write appends p to the session buffer.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final {
		return 0, ErrInputClosed
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// CloseInput declares that no more bytes will arrive. Anything still
// incomplete afterwards is truncated.
func (s *Session) CloseInput() {
	s.mu.Lock()
	s.final = true
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that made the session invalid.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Header returns the file header once it has been parsed.
func (s *Session) Header() (*FileHeader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header, s.header != nil
}

// Flights returns a snapshot of every flight started so far, including the
// one being decoded.
func (s *Session) Flights() []*Flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Flight, len(s.flights))
	for i, f := range s.flights {
		cp := *f
		cp.Samples = f.Samples[:len(f.Samples):len(f.Samples)]
		out[i] = &cp
	}
	return out
}

// Excess is the number of bytes found after the last flight.
func (s *Session) Excess() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.excess
}

// Buffered returns the number of bytes received so far.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Advance decodes as much as the buffered bytes allow. It returns the
// session error once the session is invalid; running out of bytes is
// reported through Progress.Waiting.
func (s *Session) Advance() (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := s.cursor
	var p Progress
	for {
		waiting, err := s.step(&p)
		if err != nil {
			s.fail(err)
		}
		if waiting || s.state == StateComplete || s.state == StateInvalid {
			p.Waiting = waiting
			break
		}
	}
	p.State = s.state
	p.Consumed = s.cursor - start
	if s.metrics != nil {
		s.metrics.AddBytes(int64(p.Consumed))
	}
	return p, s.err
}

// step performs one state transition. It reports waiting when the next
// transition needs more bytes; an error makes the session invalid.
func (s *Session) step(p *Progress) (bool, error) {
	switch s.state {
	case StateAwaitingFileHeader:
		return s.stepFileHeader()
	case StateAwaitingFlightHeader:
		return s.stepFlightHeader(p)
	case StateDecodingSamples:
		return s.stepSamples(p)
	}
	return false, nil
}

func (s *Session) stepFileHeader() (bool, error) {
	if !s.final && len(s.buf) < s.opts.minHeader() {
		return true, nil
	}
	hdr, err := ParseFileHeader(s.buf, s.final)
	if errors.Is(err, ErrShortBuffer) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("file header: %w", err)
	}
	s.header = hdr
	s.cursor = hdr.HeaderLen
	s.state = StateAwaitingFlightHeader
	if s.metrics != nil {
		s.metrics.SetTotalBytes(int64(hdr.TotalLen))
		for i := 0; i < hdr.ChecksumWarnings; i++ {
			s.metrics.IncChecksumWarning()
		}
	}
	common.Logf("session %s: header %q model %d, %d flights, %d bytes expected", s.id, hdr.Registration, hdr.Config.Model, len(hdr.Flights), hdr.TotalLen)
	return false, nil
}

func (s *Session) stepFlightHeader(p *Progress) (bool, error) {
	if s.next >= len(s.header.Flights) {
		s.state = StateComplete
		if n := len(s.buf) - s.cursor; n > 0 {
			s.excess = n
			common.Logf("session %s: %d bytes after last flight", s.id, n)
		}
		return false, nil
	}
	entry := s.header.Flights[s.next]
	if entry.SizeBytes() < FlightHeaderSize {
		s.flights = append(s.flights, &Flight{Header: FlightHeader{ID: entry.ID, Offset: int64(s.cursor)}})
		return false, fmt.Errorf("flight %d: %d bytes: %w", entry.ID, entry.SizeBytes(), ErrFlightSize)
	}
	fh, err := ParseFlightHeader(s.tail())
	if errors.Is(err, ErrShortBuffer) {
		if s.final {
			s.flights = append(s.flights, &Flight{Header: FlightHeader{ID: entry.ID, Offset: int64(s.cursor)}})
			return false, fmt.Errorf("flight %d header at offset %d: %w", entry.ID, s.cursor, ErrTruncated)
		}
		return true, nil
	}
	fh.Offset = int64(s.cursor)
	layout := NewLayout(fh.Features, s.header.Config)
	end := s.cursor + entry.SizeBytes()
	if fh.ID != entry.ID {
		s.flights = append(s.flights, &Flight{Header: fh, Layout: layout})
		return false, fmt.Errorf("flight index %d: want id %d, found %d: %w", s.next, entry.ID, fh.ID, ErrFlightIDMismatch)
	}
	if fh.Features != s.header.Config.Features {
		common.Logf("session %s: flight %d features [%s] differ from file [%s]", s.id, fh.ID, fh.Features, s.header.Config.Features)
	}
	if !fh.HasDate {
		common.Logf("session %s: flight %d has no valid start date", s.id, fh.ID)
	}

	if s.opts.HeadersOnly {
		if end > len(s.buf) {
			if s.final {
				s.flights = append(s.flights, &Flight{Header: fh, Layout: layout})
				return false, fmt.Errorf("flight %d body: %w", fh.ID, ErrTruncated)
			}
			return true, nil
		}
		s.flights = append(s.flights, &Flight{Header: fh, Layout: layout, Status: StatusComplete})
		s.cursor = end
		s.next++
		p.Flights++
		if s.metrics != nil {
			s.metrics.AddFlight(true)
		}
		return false, nil
	}

	s.cur = newFlightAssembler(fh, layout, end)
	s.flights = append(s.flights, s.cur.flight)
	s.cursor += FlightHeaderSize
	s.state = StateDecodingSamples
	common.Debugf("session %s: flight %d at offset %d, %d bytes, interval %s", s.id, fh.ID, fh.Offset, entry.SizeBytes(), fh.Interval)
	return false, nil
}

func (s *Session) stepSamples(p *Progress) (bool, error) {
	a := s.cur
	for s.cursor+MinRecordSize <= a.end {
		limit := a.end
		if limit > len(s.buf) {
			limit = len(s.buf)
		}
		if s.cursor > limit {
			return true, nil
		}
		rec, err := DecodeRecord(s.buf[s.cursor:limit], a.state, a.flight.Layout, s.opts.MaskMode)
		if errors.Is(err, ErrShortBuffer) {
			switch {
			case limit == a.end:
				return false, fmt.Errorf("flight %d: record at offset %d crosses flight end %d: %w", a.flight.Header.ID, s.cursor, a.end, ErrTruncated)
			case s.final:
				return false, fmt.Errorf("flight %d: record at offset %d: %w", a.flight.Header.ID, s.cursor, ErrTruncated)
			}
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("flight %d: record at offset %d: %w", a.flight.Header.ID, s.cursor, err)
		}
		n := a.apply(rec)
		s.cursor += rec.Len
		p.Records++
		if s.metrics != nil {
			s.metrics.AddRecord(n)
		}
	}
	// fewer than MinRecordSize bytes may pad the flight
	if a.end > len(s.buf) {
		if s.final {
			return false, fmt.Errorf("flight %d: body ends at %d, data ends at %d: %w", a.flight.Header.ID, a.end, len(s.buf), ErrTruncated)
		}
		return true, nil
	}
	s.cursor = a.end
	a.flight.Status = StatusComplete
	common.Debugf("session %s: flight %d complete, %d records, %d samples", s.id, a.flight.Header.ID, a.flight.Records, len(a.flight.Samples))
	s.cur = nil
	s.next++
	s.state = StateAwaitingFlightHeader
	p.Flights++
	if s.metrics != nil {
		s.metrics.AddFlight(true)
	}
	return false, nil
}

func (s *Session) tail() []byte {
	if s.cursor >= len(s.buf) {
		return nil
	}
	return s.buf[s.cursor:]
}

// fail makes the session invalid. Flights already complete keep their status.
func (s *Session) fail(err error) {
	s.state = StateInvalid
	s.err = err
	if n := len(s.flights); n > 0 && s.flights[n-1].Status != StatusComplete {
		f := s.flights[n-1]
		f.Status = StatusInvalid
		f.Err = err
		if s.metrics != nil {
			s.metrics.AddFlight(false)
		}
	}
	s.cur = nil
	common.Logf("session %s: invalid: %v", s.id, err)
}
