package jpi

import (
	"encoding/binary"
	"time"
)

// FlightHeaderSize is the length of the binary prologue of every flight.
const FlightHeaderSize = 15

// FlightHeader is the binary prologue of a flight block.
type FlightHeader struct {
	ID       uint16        `json:"id"`
	Features FeatureMask   `json:"features"`
	Reserved uint16        `json:"reserved"`
	Interval time.Duration `json:"interval"`
	Start    time.Time     `json:"start"`
	// HasDate is false when the packed date words do not form a valid date.
	HasDate  bool  `json:"hasDate"`
	Checksum byte  `json:"checksum"`
	Offset   int64 `json:"offset"`
}

// ParseFlightHeader decodes seven big-endian words and a checksum byte.
// The checksum byte is kept as read; it is not verified.
func ParseFlightHeader(buf []byte) (FlightHeader, error) {
	var fh FlightHeader
	if len(buf) < FlightHeaderSize {
		return fh, ErrShortBuffer
	}
	var w [7]uint16
	for i := range w {
		w[i] = binary.BigEndian.Uint16(buf[2*i:])
	}
	fh.ID = w[0]
	fh.Features = NewFeatureMask(w[1], w[2])
	fh.Reserved = w[3]
	fh.Interval = time.Duration(w[4]) * time.Second
	fh.Start, fh.HasDate = packedTime(w[5], w[6])
	fh.Checksum = buf[14]
	return fh, nil
}

// packedTime unpacks
//
//	date: yyyyyyy mmmm ddddd  (year since 2000)
//	time: hhhhh mmmmmm sssss  (seconds/2)
func packedTime(date, tod uint16) (time.Time, bool) {
	day := int(date & 0x1F)
	month := int(date>>5) & 0x0F
	year := 2000 + int(date>>9)
	sec := int(tod&0x1F) * 2
	min := int(tod>>5) & 0x3F
	hour := int(tod >> 11)
	if day < 1 || month < 1 || month > 12 {
		return time.Date(year, 1, 1, hour, min, sec, 0, time.UTC), false
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), true
}
