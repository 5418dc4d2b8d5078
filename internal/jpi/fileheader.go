package jpi

import (
	"errors"
	"fmt"

	"example.com/edmgate/internal/common"
)

// MinHeaderBytes is how much of a live stream is buffered before the first
// attempt to assemble the file header.
const MinHeaderBytes = 2000

// ParseFileHeader reads header lines from the start of buf until the $L
// line. ErrShortBuffer means the header is not complete yet; any other
// error means the file is unusable.
func ParseFileHeader(buf []byte, final bool) (*FileHeader, error) {
	hdr := &FileHeader{
		FuelFlow: FuelFlowConfig{Unit: FuelLPH},
		Flights:  []FlightIndexEntry{},
	}
	pos := 0
	for {
		line, err := ReadHeaderLine(buf[pos:], final)
		if err != nil {
			if errors.Is(err, ErrShortBuffer) {
				return nil, err
			}
			return nil, fmt.Errorf("header line at offset %d: %w", pos, err)
		}
		if !line.ChecksumOK() {
			hdr.ChecksumWarnings++
			common.Logf("header line $%s at offset %d: checksum %02X, computed %02X", line.Type, pos, line.Expected, line.Sum)
		}
		rec, err := line.Record()
		if err != nil {
			return nil, fmt.Errorf("header line at offset %d: %w", pos, err)
		}
		pos += line.Len

		switch r := rec.(type) {
		case Registration:
			hdr.Registration = r.Value
		case AlarmLimits:
			hdr.Alarms = r
		case FuelFlowConfig:
			hdr.FuelFlow = r
		case DownloadTime:
			hdr.Downloaded = r.Time
			hdr.HasDownloadDate = r.OK
		case DeviceConfig:
			hdr.Config = r
		case FlightIndexEntry:
			hdr.Flights = append(hdr.Flights, r)
		case LastLine:
			hdr.HeaderLen = pos
			hdr.TotalLen = pos
			for _, fl := range hdr.Flights {
				hdr.TotalLen += fl.SizeBytes()
			}
			return hdr, nil
		}
	}
}
