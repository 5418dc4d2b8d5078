// Package export writes decoded flights as JSON, MessagePack or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"example.com/edmgate/internal/jpi"
)

type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
	FormatCSV     Format = "csv"
)

// ParseFormat accepts json, msgpack (or mp) and csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Ext is the file extension used for the format, without the dot.
func (f Format) Ext() string {
	if f == FormatMsgpack {
		return "mp"
	}
	return string(f)
}

// Document is one flight together with the file header context it needs.
type Document struct {
	Registration string             `json:"registration"`
	Model        int                `json:"model"`
	Alarms       jpi.AlarmLimits    `json:"alarms"`
	FuelFlow     jpi.FuelFlowConfig `json:"fuelFlow"`
	Flight       *jpi.Flight        `json:"flight"`
}

// NewDocument pairs f with the header it was decoded from. hdr may be nil.
func NewDocument(hdr *jpi.FileHeader, f *jpi.Flight) Document {
	doc := Document{Flight: f}
	if hdr != nil {
		doc.Registration = hdr.Registration
		doc.Model = hdr.Config.Model
		doc.Alarms = hdr.Alarms
		doc.FuelFlow = hdr.FuelFlow
	}
	return doc
}

func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteMsgpack encodes doc with the same field names as WriteJSON.
func WriteMsgpack(w io.Writer, doc Document) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(doc)
}

// ReadMsgpack decodes a document written by WriteMsgpack.
func ReadMsgpack(r io.Reader) (Document, error) {
	var doc Document
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")
	err := dec.Decode(&doc)
	return doc, err
}

// RecordedChannels lists the channels with an available, non-zero reading
// in at least one sample. Channels the device never sent decode as zero.
func RecordedChannels(f *jpi.Flight) []jpi.Channel {
	var seen jpi.ChannelSet
	for i := range f.Samples {
		s := &f.Samples[i]
		for c := 0; c < jpi.NumChannels; c++ {
			ch := jpi.Channel(c)
			if seen.Has(ch) {
				continue
			}
			if v, ok := s.Value(ch); ok && v != 0 {
				seen = seen.With(ch)
			}
		}
	}
	var out []jpi.Channel
	for c := 0; c < jpi.NumChannels; c++ {
		if seen.Has(jpi.Channel(c)) {
			out = append(out, jpi.Channel(c))
		}
	}
	return out
}

// WriteCSV writes one row per sample: the timestamp, the offset from the
// first sample in seconds, the mark, and the scaled value of every recorded
// channel. Unavailable readings are left empty.
func WriteCSV(w io.Writer, f *jpi.Flight) error {
	chans := RecordedChannels(f)
	writer := csv.NewWriter(w)

	header := []string{"time", "offset", "mark"}
	for _, ch := range chans {
		header = append(header, ch.Name())
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	var t0 time.Time
	if len(f.Samples) > 0 {
		t0 = f.Samples[0].Time
	}
	row := make([]string, len(header))
	for i := range f.Samples {
		s := &f.Samples[i]
		row[0] = s.Time.UTC().Format(time.RFC3339)
		row[1] = strconv.FormatFloat(s.Time.Sub(t0).Seconds(), 'f', -1, 64)
		row[2] = strconv.Itoa(s.Mark)
		for j, ch := range chans {
			row[3+j] = formatValue(s, ch)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func formatValue(s *jpi.Sample, ch jpi.Channel) string {
	v, ok := s.Value(ch)
	if !ok {
		return ""
	}
	if sc := ch.Scale(); sc != 1 {
		return strconv.FormatFloat(float64(v)/float64(sc), 'f', 1, 64)
	}
	return strconv.Itoa(v)
}

// Write encodes doc in the given format.
func Write(w io.Writer, format Format, doc Document) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, doc)
	case FormatMsgpack:
		return WriteMsgpack(w, doc)
	case FormatCSV:
		if doc.Flight == nil {
			return fmt.Errorf("csv export needs a flight")
		}
		return WriteCSV(w, doc.Flight)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// FileName names the export of flight id, e.g. "N12345_flight_0042.csv".
func FileName(registration string, id uint16, format Format) string {
	prefix := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return -1
	}, registration)
	if prefix == "" {
		prefix = "edm"
	}
	return fmt.Sprintf("%s_flight_%04d.%s", prefix, id, format.Ext())
}

// WriteFile writes doc into dir and returns the created path.
func WriteFile(dir string, format Format, doc Document) (string, error) {
	if doc.Flight == nil {
		return "", fmt.Errorf("document has no flight")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(doc.Registration, doc.Flight.Header.ID, format))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := Write(out, format, doc); err != nil {
		out.Close()
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}
