// Package edmtest builds synthetic JPI captures for tests and samples.
package edmtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"example.com/edmgate/internal/jpi"
)

// HeaderLine frames body (the text between '$' and '*') with its checksum.
func HeaderLine(body string) string {
	return fmt.Sprintf("$%s*%02X\r\n", body, jpi.HeaderChecksum([]byte(body)))
}

// Flight is one flight block of a synthetic file.
type Flight struct {
	ID       uint16
	Features jpi.FeatureMask
	Interval uint16
	Start    time.Time
	Body     []byte
	// SizeWords overrides the size written to the D line when non-zero.
	SizeWords int
}

// Bytes returns the flight header followed by the body, padded to an even
// length.
func (f Flight) Bytes() []byte {
	out := FlightHeader(f.ID, f.Features, f.Interval, f.Start)
	out = append(out, f.Body...)
	if len(out)%2 != 0 {
		out = append(out, 0)
	}
	return out
}

func (f Flight) sizeWords() int {
	if f.SizeWords != 0 {
		return f.SizeWords
	}
	return len(f.Bytes()) / 2
}

// File describes a synthetic capture. Lines hold the header line bodies
// written before the D lines, e.g. "U,N12345".
type File struct {
	Lines   []string
	Flights []Flight
	// OmitLast leaves out the $L line.
	OmitLast bool
	Trailer  []byte
}

// DefaultLines is a plausible single-engine header: registration, alarm
// limits, fuel flow in GPH, download time and a six-cylinder EDM-830.
func DefaultLines(features jpi.FeatureMask) []string {
	return []string{
		"U,N12345",
		"A,305,230,500,415,60,1650,230,90",
		"F,0,50,0,2950,2950",
		"T,5,14,23,10,32,7",
		ConfigLine(830, features, 314),
	}
}

// ConfigLine renders a C line for the given model and feature mask.
func ConfigLine(model int, features jpi.FeatureMask, version int) string {
	return fmt.Sprintf("C,%d,%d,%d,0,%d", model, uint32(features)&0xFFFF, uint32(features)>>16, version)
}

// Header returns the ASCII header section alone.
func (f File) Header() []byte {
	var buf bytes.Buffer
	for _, l := range f.Lines {
		buf.WriteString(HeaderLine(l))
	}
	for _, fl := range f.Flights {
		buf.WriteString(HeaderLine(fmt.Sprintf("D,%d,%d", fl.ID, fl.sizeWords())))
	}
	if !f.OmitLast {
		buf.WriteString(HeaderLine("L,0"))
	}
	return buf.Bytes()
}

// Bytes returns the complete capture.
func (f File) Bytes() []byte {
	out := f.Header()
	for _, fl := range f.Flights {
		out = append(out, fl.Bytes()...)
	}
	return append(out, f.Trailer...)
}

// FlightHeader encodes the 15-byte flight prologue.
func FlightHeader(id uint16, features jpi.FeatureMask, interval uint16, start time.Time) []byte {
	buf := make([]byte, jpi.FlightHeaderSize)
	binary.BigEndian.PutUint16(buf[0:], id)
	binary.BigEndian.PutUint16(buf[2:], uint16(uint32(features)>>16))
	binary.BigEndian.PutUint16(buf[4:], uint16(features))
	binary.BigEndian.PutUint16(buf[8:], interval)
	date := uint16(start.Year()-2000)<<9 | uint16(start.Month())<<5 | uint16(start.Day())
	tod := uint16(start.Hour())<<11 | uint16(start.Minute())<<5 | uint16(start.Second()/2)
	binary.BigEndian.PutUint16(buf[10:], date)
	binary.BigEndian.PutUint16(buf[12:], tod)
	var sum byte
	for _, b := range buf[:14] {
		sum ^= b
	}
	buf[14] = sum
	return buf
}

// Delta is the wire contribution of one channel to a record.
type Delta struct {
	// Low is the value byte; zero marks the sensor unavailable.
	Low byte
	// High is sent as the scale byte when Scaled is set.
	High     byte
	Scaled   bool
	Negative bool
}

// Record is one wire record to encode.
type Record struct {
	Repeat int8
	Deltas map[jpi.Channel]Delta
}

// RecordEncoder writes records the way the device does, suppressing mask
// bytes the decoder can carry over from the previous record.
type RecordEncoder struct {
	Mode  jpi.MaskMode
	value [6]byte
	scale [3]byte
	sign  [6]byte
}

// Encode returns the wire bytes of r.
func (e *RecordEncoder) Encode(r Record) []byte {
	var value, sign [6]byte
	var scale [3]byte
	chans := make([]int, 0, len(r.Deltas))
	for ch, d := range r.Deltas {
		chans = append(chans, int(ch))
		value[ch/8] |= 1 << uint(ch%8)
		if d.Negative {
			sign[ch/8] |= 1 << uint(ch%8)
		}
		if d.Scaled {
			if b, ok := scaleBit(ch); ok {
				scale[b/8] |= 1 << uint(b%8)
			}
		}
	}
	sort.Ints(chans)

	var bitmap uint16
	for i := range value {
		if e.send(value[i], e.value[i]) || e.send(sign[i], e.sign[i]) {
			bitmap |= 1 << uint(i)
		}
	}
	for i := range scale {
		if e.send(scale[i], e.scale[i]) {
			bitmap |= 1 << uint(6+i)
		}
	}

	out := make([]byte, 3, 64)
	binary.BigEndian.PutUint16(out, bitmap)
	out[2] = byte(r.Repeat)
	for i := range value {
		if bitmap&(1<<uint(i)) != 0 {
			out = append(out, value[i])
		}
	}
	for i := range scale {
		if bitmap&(1<<uint(6+i)) != 0 {
			out = append(out, scale[i])
		}
	}
	for i := range sign {
		if bitmap&(1<<uint(i)) != 0 {
			out = append(out, sign[i])
		}
	}
	for _, ch := range chans {
		out = append(out, r.Deltas[jpi.Channel(ch)].Low)
	}
	for b := 0; b < 24; b++ {
		if scale[b/8]&(1<<uint(b%8)) == 0 {
			continue
		}
		out = append(out, r.Deltas[scaleChannel(b)].High)
	}
	out = append(out, 0)

	e.value, e.scale, e.sign = value, scale, sign
	return out
}

func (e *RecordEncoder) send(cur, prev byte) bool {
	if e.Mode == jpi.MaskReset {
		return cur != 0
	}
	return cur != prev
}

// scaleBit maps a channel to the scale-mask bit carrying its high byte.
func scaleBit(ch jpi.Channel) (int, bool) {
	switch {
	case ch >= 0 && ch < 8:
		return int(ch), true
	case ch >= 24 && ch < 32:
		return int(ch) - 16, true
	}
	return 0, false
}

func scaleChannel(bit int) jpi.Channel {
	if bit < 8 {
		return jpi.Channel(bit)
	}
	return jpi.Channel(bit + 16)
}

// Body concatenates encoded records.
func Body(enc *RecordEncoder, recs ...Record) []byte {
	var out []byte
	for _, r := range recs {
		out = append(out, enc.Encode(r)...)
	}
	return out
}
