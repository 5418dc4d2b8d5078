package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"example.com/edmgate/internal/edmtest"
	"example.com/edmgate/internal/jpi"
	"example.com/edmgate/internal/manifest"
	"example.com/edmgate/internal/report"
)

const features = jpi.FeatureBattery | jpi.FeatureFuelFlow | 0x0F<<2 | 0x0F<<11

type deltas = map[jpi.Channel]edmtest.Delta

func writeSyntheticCapture(t *testing.T, path string, id uint16) {
	t.Helper()
	enc := &edmtest.RecordEncoder{}
	body := edmtest.Body(enc,
		edmtest.Record{Deltas: deltas{jpi.ChanEGT1: {Low: 0x4C, High: 0x05, Scaled: true}, jpi.ChanCHT1: {Low: 200}, jpi.ChanBAT: {Low: 140}, jpi.ChanFF: {Low: 100}}},
		edmtest.Record{Repeat: 4, Deltas: deltas{jpi.ChanCHT1: {Low: 5}}},
		edmtest.Record{Deltas: deltas{jpi.ChanFF: {Low: 20, Negative: true}}},
	)
	file := edmtest.File{
		Lines: edmtest.DefaultLines(features),
		Flights: []edmtest.Flight{
			{ID: id, Features: features, Interval: 6, Start: time.Date(2023, 5, 14, 10, 32, 0, 0, time.UTC), Body: body},
		},
	}
	if err := os.WriteFile(path, file.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestBatchCmdGeneratesOutputs(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "inputs")
	nestedDir := filepath.Join(inputDir, "nested")
	if err := os.MkdirAll(nestedDir, 0o755); err != nil {
		t.Fatalf("MkdirAll nested: %v", err)
	}
	outDir := filepath.Join(root, "out")

	writeSyntheticCapture(t, filepath.Join(inputDir, "alpha.jpi"), 7)
	writeSyntheticCapture(t, filepath.Join(nestedDir, "beta.JPI"), 8)
	if err := os.WriteFile(filepath.Join(inputDir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("WriteFile notes: %v", err)
	}

	out := captureStdout(t)
	batchCmd([]string{
		"--in", inputDir,
		"--out-dir", outDir,
		"--format", "csv",
	})
	if !strings.Contains(out.String(), "2 file(s), 0 failed") {
		t.Fatalf("unexpected batch output:\n%s", out.String())
	}

	check := func(name string, id int) {
		dir := filepath.Join(outDir, name)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("Output dir missing for %s: %v", name, err)
		}
		csvPath := filepath.Join(dir, fmt.Sprintf("N12345_flight_%04d.csv", id))
		data, err := os.ReadFile(csvPath)
		if err != nil {
			t.Fatalf("ReadFile export %s: %v", name, err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		// header, one sample, four repeats ahead of the second record, the third
		if len(lines) != 8 {
			t.Fatalf("%s: expected 8 csv lines, got %d", name, len(lines))
		}
		rep, err := report.LoadSummaryJSON(filepath.Join(dir, fmt.Sprintf("flight_%04d.summary.json", id)))
		if err != nil {
			t.Fatalf("LoadSummaryJSON %s: %v", name, err)
		}
		if int(rep.Summary.FlightID) != id || rep.Summary.Samples != 7 {
			t.Fatalf("%s: unexpected summary %+v", name, rep.Summary)
		}
		if len(rep.Digest) != 64 {
			t.Fatalf("%s: digest %q", name, rep.Digest)
		}
		m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
		if err != nil {
			t.Fatalf("manifest %s: %v", name, err)
		}
		// capture, export, summary
		if len(m.Items) != 3 || m.Items[0].Type != "capture" || m.Items[0].Sha256 != rep.Digest {
			t.Fatalf("%s: unexpected manifest %+v", name, m.Items)
		}
	}
	check("alpha", 7)
	check("beta", 8)
}

func TestDecodeCmdWritesJSON(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "capture.jpi")
	writeSyntheticCapture(t, in, 3)
	outDir := filepath.Join(root, "out")

	out := captureStdout(t)
	decodeCmd([]string{"--in", in, "--out-dir", outDir, "--flight", "3"})
	path := filepath.Join(outDir, "N12345_flight_0003.json")
	if !strings.Contains(out.String(), path) {
		t.Fatalf("output does not name %s:\n%s", path, out.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc struct {
		Registration string `json:"registration"`
		Flight       struct {
			Status  string            `json:"status"`
			Samples []json.RawMessage `json:"samples"`
		} `json:"flight"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.Registration != "N12345" || doc.Flight.Status != "complete" || len(doc.Flight.Samples) != 7 {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestInfoCmdListsFlights(t *testing.T) {
	in := filepath.Join(t.TempDir(), "capture.jpi")
	writeSyntheticCapture(t, in, 12)

	out := captureStdout(t)
	infoCmd([]string{"--in", in})
	for _, want := range []string{"N12345", "EDM-830", "2023-05-14 10:32:00", "complete"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("info output missing %q:\n%s", want, out.String())
		}
	}
}

func TestSummaryCmdWritesJSON(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "capture.jpi")
	writeSyntheticCapture(t, in, 5)
	jsonOut := filepath.Join(root, "summary.json")

	out := captureStdout(t)
	summaryCmd([]string{"--in", in, "--flight", "5", "--json", jsonOut})
	if !strings.Contains(out.String(), "PEAK") {
		t.Fatalf("expected peak table:\n%s", out.String())
	}
	rep, err := report.LoadSummaryJSON(jsonOut)
	if err != nil {
		t.Fatalf("LoadSummaryJSON: %v", err)
	}
	if rep.Source != "capture.jpi" || rep.Summary.FuelUnit != "gal" {
		t.Fatalf("unexpected report %+v", rep)
	}
	// 10.0 GPH over six 6 s steps; the last sample has no following step
	if rep.Summary.FuelUsed < 0.099 || rep.Summary.FuelUsed > 0.101 {
		t.Fatalf("fuel used %v", rep.Summary.FuelUsed)
	}
}

func TestFindCapturesMissingDir(t *testing.T) {
	got, err := findCaptures(filepath.Join(t.TempDir(), "missing"))
	if err != nil || len(got) != 0 {
		t.Fatalf("findCaptures = %v, %v", got, err)
	}
}
