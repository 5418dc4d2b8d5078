package jpi

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrShortBuffer means more bytes are needed before the step can be
	// retried; nothing was consumed.
	ErrShortBuffer = errors.New("jpi: short buffer")
	// ErrInvalidLine reports a structurally malformed header line.
	ErrInvalidLine = errors.New("jpi: invalid header line")
	// ErrFlightIDMismatch reports a flight block whose id differs from the
	// flight index entry it was expected to match.
	ErrFlightIDMismatch = errors.New("jpi: flight id mismatch")
	// ErrFlightSize reports an index entry too small to hold a flight header.
	ErrFlightSize = errors.New("jpi: flight size smaller than header")
	// ErrTruncated reports a complete source that ended inside a header line,
	// a flight header or a sample record.
	ErrTruncated = errors.New("jpi: truncated data")
)

// Status is the decode state reported for a file or a flight.
type Status int

const (
	StatusParsing Status = iota
	StatusComplete
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusParsing:
		return "parsing"
	case StatusComplete:
		return "complete"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for _, v := range []Status{StatusParsing, StatusComplete, StatusInvalid} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("jpi: unknown status %q", b)
}

// AlarmLimits are the thresholds programmed into the device (A line).
type AlarmLimits struct {
	VoltsHigh int `json:"voltsHigh"`
	VoltsLow  int `json:"voltsLow"`
	Diff      int `json:"diff"`
	CHT       int `json:"cht"`
	CLD       int `json:"cld"`
	TIT       int `json:"tit"`
	OilHigh   int `json:"oilHigh"`
	OilLow    int `json:"oilLow"`
}

// FuelUnit is the fuel-flow unit configured on the device.
type FuelUnit int

const (
	FuelGPH FuelUnit = iota
	FuelPPH
	FuelLPH
	FuelKPH
)

func (u FuelUnit) String() string {
	switch u {
	case FuelGPH:
		return "GPH"
	case FuelPPH:
		return "PPH"
	case FuelLPH:
		return "LPH"
	case FuelKPH:
		return "KPH"
	default:
		return "unknown"
	}
}

// Quantity returns the unit of the integrated amount (fuel used).
func (u FuelUnit) Quantity() string {
	switch u {
	case FuelGPH:
		return "gal"
	case FuelPPH:
		return "lb"
	case FuelKPH:
		return "kg"
	default:
		return "l"
	}
}

// ParseFuelUnit accepts either the rate name (GPH) or the quantity name (gal).
func ParseFuelUnit(s string) (FuelUnit, bool) {
	switch s {
	case "GPH", "gph", "gal", "gallon", "gallons":
		return FuelGPH, true
	case "PPH", "pph", "lb", "lbs", "pound", "pounds":
		return FuelPPH, true
	case "LPH", "lph", "l", "litre", "liter", "litres", "liters":
		return FuelLPH, true
	case "KPH", "kph", "kg", "kilogram", "kilograms":
		return FuelKPH, true
	}
	return FuelLPH, false
}

// FuelFlowConfig is the F line.
type FuelFlowConfig struct {
	Unit  FuelUnit `json:"unit"`
	Tank1 int      `json:"tank1"`
	Tank2 int      `json:"tank2"`
	K1    int      `json:"k1"`
	K2    int      `json:"k2"`
}

// DeviceConfig is the C line.
type DeviceConfig struct {
	Model     int         `json:"model"`
	FlagsLow  int         `json:"flagsLow"`
	FlagsHigh int         `json:"flagsHigh"`
	Unknown   int         `json:"unknown"`
	Version   int         `json:"version"`
	Features  FeatureMask `json:"features"`
}

// Engines returns the number of engine banks monitored by the device model.
func (c DeviceConfig) Engines() int {
	switch c.Model {
	case 760, 960:
		return 2
	default:
		return 1
	}
}

// FlightIndexEntry is one D line.
type FlightIndexEntry struct {
	ID        uint16 `json:"id"`
	SizeWords int    `json:"sizeWords"`
}

func (e FlightIndexEntry) SizeBytes() int { return e.SizeWords * 2 }

// FileHeader is the decoded ASCII header section of a JPI file.
type FileHeader struct {
	Registration     string             `json:"registration"`
	Downloaded       time.Time          `json:"downloaded,omitempty"`
	HasDownloadDate  bool               `json:"hasDownloadDate"`
	Alarms           AlarmLimits        `json:"alarms"`
	FuelFlow         FuelFlowConfig     `json:"fuelFlow"`
	Config           DeviceConfig       `json:"config"`
	Flights          []FlightIndexEntry `json:"flights"`
	HeaderLen        int                `json:"headerLen"`
	TotalLen         int                `json:"totalLen"`
	ChecksumWarnings int                `json:"checksumWarnings"`
}

// FlightOffset returns the byte offset of flight i's block within the file.
func (h *FileHeader) FlightOffset(i int) int {
	off := h.HeaderLen
	for j := 0; j < i && j < len(h.Flights); j++ {
		off += h.Flights[j].SizeBytes()
	}
	return off
}

// Sample is one decoded telemetry sample.
type Sample struct {
	Time     time.Time          `json:"time" msgpack:"time"`
	Values   [NumChannels]int16 `json:"values" msgpack:"values"`
	NA       ChannelSet         `json:"na" msgpack:"na"`
	Diff     [MaxEngines]int    `json:"diff" msgpack:"diff"`
	DiffOK   [MaxEngines]bool   `json:"diffOk" msgpack:"diffOk"`
	Mark     int                `json:"mark" msgpack:"mark"`
	Repeated bool               `json:"repeated,omitempty" msgpack:"repeated,omitempty"`
}

// Value returns the raw value of ch and whether the sensor was available.
func (s *Sample) Value(ch Channel) (int, bool) {
	if ch < 0 || int(ch) >= NumChannels {
		return 0, false
	}
	return int(s.Values[ch]), !s.NA.Has(ch)
}

// RPM combines the low and high RPM channels.
func (s *Sample) RPM() (int, bool) {
	if s.NA.Has(ChanRPM) {
		return 0, false
	}
	return int(s.Values[ChanRPM]) + int(s.Values[ChanRPMH])<<8, true
}

// Flight is the decoded sample sequence of one flight block.
type Flight struct {
	Header  FlightHeader `json:"header"`
	Layout  Layout       `json:"layout"`
	Samples []Sample     `json:"samples"`
	Records int          `json:"records"`
	Status  Status       `json:"status"`
	Err     error        `json:"-"`
}

// Duration is the span between the first and last sample.
func (f *Flight) Duration() time.Duration {
	if len(f.Samples) < 2 {
		return 0
	}
	return f.Samples[len(f.Samples)-1].Time.Sub(f.Samples[0].Time)
}

// File is the result of decoding a complete buffer.
type File struct {
	Header  *FileHeader
	Flights []*Flight
	Excess  int
	Status  Status
	Err     error
}

// Flight returns the decoded flight with the given id.
func (f *File) Flight(id uint16) (*Flight, bool) {
	for _, fl := range f.Flights {
		if fl.Header.ID == id {
			return fl, true
		}
	}
	return nil, false
}
