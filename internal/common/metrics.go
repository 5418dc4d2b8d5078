package common

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Metrics collects decode throughput counters. All methods are safe for
// concurrent use; a nil *Metrics is never dereferenced by the decoder.
type Metrics struct {
	mu               sync.Mutex
	start            time.Time
	end              time.Time
	bytes            int64
	totalBytes       int64
	flights          int64
	invalidFlights   int64
	records          int64
	samples          int64
	checksumWarnings int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

func (m *Metrics) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.bytes += n
	m.mu.Unlock()
}

// AddRecord counts one wire record and the samples it expanded into.
func (m *Metrics) AddRecord(samples int) {
	m.mu.Lock()
	m.records++
	if samples > 0 {
		m.samples += int64(samples)
	}
	m.mu.Unlock()
}

func (m *Metrics) AddFlight(valid bool) {
	m.mu.Lock()
	m.flights++
	if !valid {
		m.invalidFlights++
	}
	m.mu.Unlock()
}

func (m *Metrics) IncChecksumWarning() {
	m.mu.Lock()
	m.checksumWarnings++
	m.mu.Unlock()
}

func (m *Metrics) SetTotalBytes(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalBytes = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:         m.elapsedLocked(),
		Bytes:            m.bytes,
		TotalBytes:       m.totalBytes,
		Flights:          m.flights,
		InvalidFlights:   m.invalidFlights,
		Records:          m.records,
		Samples:          m.samples,
		ChecksumWarnings: m.checksumWarnings,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration         time.Duration
	Bytes            int64
	TotalBytes       int64
	Flights          int64
	InvalidFlights   int64
	Records          int64
	Samples          int64
	ChecksumWarnings int64
}

func (s MetricsSnapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	ratio := float64(s.Bytes) / float64(s.TotalBytes)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// FormatBytes renders a byte count with IEC units.
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

func formatProgressLine(s MetricsSnapshot) string {
	rate := FormatBytes(int64(s.ThroughputBytesPerSecond()))
	if s.TotalBytes > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%s / %s) %d flights %d samples %s/s", pct, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), s.Flights, s.Samples, rate)
	}
	return fmt.Sprintf("Decoded: %s %d flights %d samples %s/s", FormatBytes(s.Bytes), s.Flights, s.Samples, rate)
}

func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
