package jpi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// maxHeaderLine bounds the scan for the '*' terminator so binary data
	// mistaken for a header cannot consume the whole buffer.
	maxHeaderLine = 256
	lineFooterLen = 4 // two hex digits + CR LF
)

// LineType is the character following '$' on a header line.
type LineType byte

const (
	LineRegistration LineType = 'U'
	LineAlarms       LineType = 'A'
	LineFuelFlow     LineType = 'F'
	LineDownloadTime LineType = 'T'
	LineConfig       LineType = 'C'
	LineFlight       LineType = 'D'
	LineLast         LineType = 'L'
)

func (t LineType) valid() bool {
	switch t {
	case LineRegistration, LineAlarms, LineFuelFlow, LineDownloadTime, LineConfig, LineFlight, LineLast:
		return true
	}
	return false
}

func (t LineType) String() string { return string(rune(t)) }

// HeaderLine is one tokenized `$<type>,<field>...*<CS>\r\n` line.
type HeaderLine struct {
	Type   LineType
	Fields []string
	// Sum is the XOR of every byte from the type character up to, but not
	// including, the '*' terminator.
	Sum byte
	// Expected is the checksum written on the line, -1 when the two
	// characters after '*' are not hex digits.
	Expected int
	// Len is the number of bytes the line occupies, footer included.
	Len int
}

// ChecksumOK reports whether the written checksum matches the computed one.
func (l HeaderLine) ChecksumOK() bool {
	return l.Expected == int(l.Sum)
}

// ReadHeaderLine tokenizes the header line at the start of buf. When the
// line is incomplete it returns ErrShortBuffer, or ErrTruncated if final
// says no more bytes will arrive. A checksum mismatch is not an error; the
// caller inspects ChecksumOK.
func ReadHeaderLine(buf []byte, final bool) (HeaderLine, error) {
	var hl HeaderLine
	short := func() (HeaderLine, error) {
		if final {
			return HeaderLine{}, ErrTruncated
		}
		return HeaderLine{}, ErrShortBuffer
	}
	if len(buf) < 2 {
		if len(buf) == 1 && buf[0] != '$' {
			return hl, fmt.Errorf("%w: expected '$', found 0x%02X", ErrInvalidLine, buf[0])
		}
		return short()
	}
	if buf[0] != '$' {
		return hl, fmt.Errorf("%w: expected '$', found 0x%02X", ErrInvalidLine, buf[0])
	}
	hl.Type = LineType(buf[1])
	if !hl.Type.valid() {
		return hl, fmt.Errorf("%w: unknown line type 0x%02X", ErrInvalidLine, buf[1])
	}
	sum := buf[1]

	var (
		field   []byte
		started bool
		skip    bool
		ended   bool
	)
	flush := func() {
		if started {
			hl.Fields = append(hl.Fields, string(field))
		}
		field = field[:0]
		started = false
		skip = false
	}
	i := 2
	for ; i < len(buf); i++ {
		if i >= maxHeaderLine {
			return HeaderLine{}, fmt.Errorf("%w: no terminator within %d bytes", ErrInvalidLine, maxHeaderLine)
		}
		c := buf[i]
		if c == '*' {
			flush()
			ended = true
			i++
			break
		}
		sum ^= c
		switch {
		case c == ',':
			flush()
		case isAlnum(c):
			if !skip {
				field = append(field, c)
				started = true
			}
		default:
			if started {
				skip = true
			}
		}
	}
	if !ended || len(buf)-i < lineFooterLen {
		return short()
	}
	hl.Sum = sum
	hl.Expected = -1
	if v, err := strconv.ParseUint(string(buf[i:i+2]), 16, 8); err == nil {
		hl.Expected = int(v)
	}
	if buf[i+2] != '\r' || buf[i+3] != '\n' {
		return HeaderLine{}, fmt.Errorf("%w: $%s line not terminated by CR LF", ErrInvalidLine, hl.Type)
	}
	hl.Len = i + lineFooterLen
	return hl, nil
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

// HeaderChecksum computes the checksum a writer would append for body, the
// bytes between '$' and '*'.
func HeaderChecksum(body []byte) byte {
	var sum byte
	for _, c := range body {
		sum ^= c
	}
	return sum
}

// HeaderRecord is the typed value of a header line. It is one of
// Registration, AlarmLimits, FuelFlowConfig, DownloadTime, DeviceConfig,
// FlightIndexEntry or LastLine.
type HeaderRecord interface {
	headerRecord()
}

// Registration is the U line.
type Registration struct {
	Value string
}

// DownloadTime is the T line. OK is false when the line did not describe a
// valid date.
type DownloadTime struct {
	Time   time.Time
	Serial int
	OK     bool
}

// LastLine is the L line ending the header section.
type LastLine struct{}

func (Registration) headerRecord()     {}
func (AlarmLimits) headerRecord()      {}
func (FuelFlowConfig) headerRecord()   {}
func (DownloadTime) headerRecord()     {}
func (DeviceConfig) headerRecord()     {}
func (FlightIndexEntry) headerRecord() {}
func (LastLine) headerRecord()         {}

// Record converts the tokenized fields into the typed value for the line.
// Lines with the wrong field count fall back to defaults except D lines,
// which are rejected because they determine where each flight starts.
func (l HeaderLine) Record() (HeaderRecord, error) {
	f := l.Fields
	switch l.Type {
	case LineRegistration:
		if len(f) != 1 {
			return Registration{}, nil
		}
		return Registration{Value: f[0]}, nil
	case LineAlarms:
		if len(f) != 8 {
			return AlarmLimits{}, nil
		}
		return AlarmLimits{
			VoltsHigh: atoiOr(f[0], 0),
			VoltsLow:  atoiOr(f[1], 0),
			Diff:      atoiOr(f[2], 0),
			CHT:       atoiOr(f[3], 0),
			CLD:       atoiOr(f[4], 0),
			TIT:       atoiOr(f[5], 0),
			OilHigh:   atoiOr(f[6], 0),
			OilLow:    atoiOr(f[7], 0),
		}, nil
	case LineFuelFlow:
		ff := FuelFlowConfig{Unit: FuelLPH}
		if len(f) != 5 {
			return ff, nil
		}
		if u := atoiOr(f[0], -1); u >= int(FuelGPH) && u <= int(FuelKPH) {
			ff.Unit = FuelUnit(u)
		}
		ff.Tank1 = atoiOr(f[1], 0)
		ff.Tank2 = atoiOr(f[2], 0)
		ff.K1 = atoiOr(f[3], 0)
		ff.K2 = atoiOr(f[4], 0)
		return ff, nil
	case LineDownloadTime:
		return parseDownloadTime(f), nil
	case LineConfig:
		if len(f) != 5 {
			return DeviceConfig{}, nil
		}
		cfg := DeviceConfig{
			Model:     atoiOr(f[0], 0),
			FlagsLow:  atoiOr(f[1], 0),
			FlagsHigh: atoiOr(f[2], 0),
			Unknown:   atoiOr(f[3], 0),
			Version:   atoiOr(f[4], 0),
		}
		cfg.Features = NewFeatureMask(uint16(cfg.FlagsHigh), uint16(cfg.FlagsLow))
		return cfg, nil
	case LineFlight:
		if len(f) != 2 {
			return nil, fmt.Errorf("%w: $D line has %d fields, want 2", ErrInvalidLine, len(f))
		}
		id, err := strconv.ParseUint(f[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: $D flight id %q", ErrInvalidLine, f[0])
		}
		words, err := strconv.ParseUint(f[1], 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: $D flight size %q", ErrInvalidLine, f[1])
		}
		return FlightIndexEntry{ID: uint16(id), SizeWords: int(words)}, nil
	case LineLast:
		return LastLine{}, nil
	}
	return nil, fmt.Errorf("%w: unknown line type %s", ErrInvalidLine, l.Type)
}

// parseDownloadTime reads month, day, two-digit year, hour, minute, serial.
func parseDownloadTime(f []string) DownloadTime {
	if len(f) != 6 {
		return DownloadTime{}
	}
	var v [6]int
	for i, s := range f {
		n, err := strconv.Atoi(s)
		if err != nil {
			return DownloadTime{}
		}
		v[i] = n
	}
	month, day, year, hour, minute := v[0], v[1], v[2], v[3], v[4]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return DownloadTime{}
	}
	return DownloadTime{
		Time:   time.Date(2000+year, time.Month(month), day, hour, minute, 0, 0, time.UTC),
		Serial: v[5],
		OK:     true,
	}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
