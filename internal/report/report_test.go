package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/edmgate/internal/analysis"
	"example.com/edmgate/internal/jpi"
)

const testDigest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func sampleReport() FlightReport {
	return FlightReport{
		Source:    "N12345.jpi",
		Digest:    testDigest,
		Generated: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Summary: analysis.Summary{
			FlightID:     42,
			Registration: "N12345",
			Model:        830,
			Start:        time.Date(2023, 5, 14, 10, 32, 20, 0, time.UTC),
			Duration:     90 * time.Minute,
			Interval:     6 * time.Second,
			Samples:      900,
			Records:      870,
			Status:       "complete",
			Features:     "6 cylinders, battery, oil, fuelflow",
			FuelUsed:     18.4,
			FuelUnit:     "gal",
			Peaks: []analysis.Peak{
				{Kind: analysis.KindCHT, Label: "CHT3", Channel: jpi.ChanCHT1 + 2, Value: 412, Offset: 12 * time.Minute},
				{Kind: analysis.KindFuelFlow, Label: "FF", Channel: jpi.ChanFF, Value: 148, Offset: 2 * time.Minute},
				{Kind: analysis.KindDiff, Label: "DIF", Channel: -1, Value: 61},
			},
			Alarms: []analysis.Interval{
				{Kind: analysis.KindCHT, Label: "CHT3", Channel: jpi.ChanCHT1 + 2, Start: 120, End: 131, Offset: 12 * time.Minute, Duration: 66 * time.Second, Extreme: 412, Limit: 400},
			},
			Outages: []analysis.NAInterval{
				{Channel: jpi.ChanOIL, Start: 10, End: 12, Offset: time.Minute, Duration: 12 * time.Second},
				{Channel: jpi.ChanOIL, Start: 40, End: 41, Offset: 4 * time.Minute},
			},
		},
	}
}

func TestSummaryJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	rep := sampleReport()
	if err := SaveSummaryJSON(rep, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSummaryJSON(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Digest != testDigest || got.Summary.FlightID != 42 {
		t.Fatalf("unexpected report %+v", got)
	}
	if len(got.Summary.Peaks) != 3 || got.Summary.Peaks[0].Kind != analysis.KindCHT {
		t.Fatalf("peaks not restored: %+v", got.Summary.Peaks)
	}
	if got.Summary.Alarms[0].Duration != 66*time.Second {
		t.Fatalf("alarm duration %v", got.Summary.Alarms[0].Duration)
	}
}

func TestSaveFlightPDF(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		rep  FlightReport
		opts PDFOptions
	}{
		{name: "full", rep: sampleReport()},
		{name: "capped", rep: sampleReport(), opts: PDFOptions{QRSize: 96, MaxOutages: 1}},
		{name: "empty", rep: FlightReport{Summary: analysis.Summary{FlightID: 1, Status: "invalid"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(dir, tc.name+".pdf")
			if err := SaveFlightPDF(tc.rep, out, tc.opts); err != nil {
				t.Fatalf("SaveFlightPDF: %v", err)
			}
			b, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.HasPrefix(b, []byte("%PDF-")) {
				t.Fatalf("output is not a PDF")
			}
		})
	}
}

func TestDigestToQR(t *testing.T) {
	png, err := DigestToQR("  "+testDigest+"\n", 0)
	if err != nil {
		t.Fatalf("DigestToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a PNG")
	}
	if _, err := DigestToQR("zz--", 64); err == nil {
		t.Fatalf("expected error for digest without hex digits")
	}
}

func TestNormalizeDigest(t *testing.T) {
	if got := normalizeDigest("ab:cd ef"); got != "ABCDEF" {
		t.Fatalf("normalizeDigest = %q", got)
	}
}

func TestLabels(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{offsetLabel(3723 * time.Second), "+1:02:03"},
		{formatReading(jpi.ChanBAT, 284), "28.4"},
		{formatReading(-1, 61), "61"},
		{modelLabel(0), "-"},
		{modelLabel(760), "EDM-760"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q want %q", c.got, c.want)
		}
	}
}
