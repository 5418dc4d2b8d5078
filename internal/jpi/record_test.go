package jpi

import (
	"errors"
	"testing"
)

// six cylinders with CHT and EGT probes, battery, oil and fuel flow
const testFeatures = FeatureBattery | FeatureOil | FeatureFuelFlow | 0x3F<<2 | 0x3F<<11

var singleEngine = Layout{Features: testFeatures, Engines: 1}

func TestDecodeRecordNegativeDelta(t *testing.T) {
	// bitmap: value/sign byte 0; ch3 present and negative; value 0x0A
	buf := []byte{0x00, 0x01, 0x00, 0x08, 0x08, 0x0A, 0x00}
	rec, err := DecodeRecord(buf, RecordState{}, singleEngine, MaskCarry)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got := rec.State.Values[3]; got != -10 {
		t.Fatalf("channel 3 = %d, want -10", got)
	}
	if rec.State.NA.Has(3) {
		t.Fatalf("channel 3 flagged NA")
	}
	if rec.Len != len(buf) {
		t.Fatalf("Len = %d, want %d", rec.Len, len(buf))
	}
	if rec.Repeat != 0 {
		t.Fatalf("Repeat = %d", rec.Repeat)
	}
}

func TestDecodeRecordZeroByteMarksNA(t *testing.T) {
	var prev RecordState
	prev.Values[3] = 100
	buf := []byte{0x00, 0x01, 0x00, 0x08, 0x00, 0x00, 0x00}
	rec, err := DecodeRecord(buf, prev, singleEngine, MaskCarry)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if !rec.State.NA.Has(3) {
		t.Fatalf("channel 3 should be NA")
	}
	if rec.State.Values[3] != 100 {
		t.Fatalf("NA channel value changed to %d", rec.State.Values[3])
	}

	// a later non-zero byte clears the flag again
	rec, err = DecodeRecord([]byte{0x00, 0x01, 0x00, 0x08, 0x00, 0x05, 0x00}, rec.State, singleEngine, MaskCarry)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if rec.State.NA.Has(3) || rec.State.Values[3] != 105 {
		t.Fatalf("channel 3 = %d na=%v, want 105 available", rec.State.Values[3], rec.State.NA.Has(3))
	}
}

func TestDecodeRecordScaledChannel(t *testing.T) {
	// EGT1 low byte 0xDC, scale byte 0x05
	buf := []byte{0x00, 0x41, 0x00, 0x01, 0x01, 0x00, 0xDC, 0x05, 0x00}
	rec, err := DecodeRecord(buf, RecordState{}, singleEngine, MaskCarry)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got := rec.State.Values[0]; got != 1500 {
		t.Fatalf("EGT1 = %d, want 1500", got)
	}
	if rec.Len != len(buf) {
		t.Fatalf("Len = %d, want %d", rec.Len, len(buf))
	}

	// scale byte zero flags the channel even when the low byte is present
	buf = []byte{0x00, 0x41, 0x00, 0x01, 0x01, 0x00, 0x10, 0x00, 0x00}
	rec, err = DecodeRecord(buf, rec.State, singleEngine, MaskCarry)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if !rec.State.NA.Has(0) {
		t.Fatalf("zero scale byte should flag EGT1")
	}
	if rec.State.Values[0] != 1516 {
		t.Fatalf("EGT1 = %d, want 1516", rec.State.Values[0])
	}
}

func TestDecodeRecordMaskModes(t *testing.T) {
	first := []byte{0x00, 0x01, 0x00, 0x08, 0x08, 0x0A, 0x00}
	second := []byte{0x00, 0x00, 0x00, 0x02, 0x00}

	tests := []struct {
		name    string
		mode    MaskMode
		value   int16
		wantLen int
	}{
		{name: "carry", mode: MaskCarry, value: -12, wantLen: 5},
		{name: "reset", mode: MaskReset, value: -10, wantLen: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := DecodeRecord(first, RecordState{}, singleEngine, tt.mode)
			if err != nil {
				t.Fatalf("first record: %v", err)
			}
			rec, err = DecodeRecord(second, rec.State, singleEngine, tt.mode)
			if err != nil {
				t.Fatalf("second record: %v", err)
			}
			if rec.State.Values[3] != tt.value {
				t.Fatalf("channel 3 = %d, want %d", rec.State.Values[3], tt.value)
			}
			if rec.Len != tt.wantLen {
				t.Fatalf("Len = %d, want %d", rec.Len, tt.wantLen)
			}
		})
	}
}

func TestDecodeRecordShortBuffer(t *testing.T) {
	full := []byte{0x00, 0x01, 0x00, 0x08, 0x08, 0x0A, 0x00}
	for n := 0; n < len(full); n++ {
		if _, err := DecodeRecord(full[:n], RecordState{}, singleEngine, MaskCarry); !errors.Is(err, ErrShortBuffer) {
			t.Fatalf("len %d: err = %v, want ErrShortBuffer", n, err)
		}
	}
}

func TestDecodeRecordRepeatCount(t *testing.T) {
	tests := []struct {
		raw  byte
		want int
	}{
		{raw: 0x00, want: 0},
		{raw: 0x03, want: 3},
		{raw: 0x7F, want: 127},
		{raw: 0xFF, want: 0},
		{raw: 0x80, want: 0},
	}
	for _, tt := range tests {
		rec, err := DecodeRecord([]byte{0x00, 0x00, tt.raw, 0x00}, RecordState{}, singleEngine, MaskCarry)
		if err != nil {
			t.Fatalf("repeat 0x%02X: %v", tt.raw, err)
		}
		if rec.Repeat != tt.want {
			t.Fatalf("repeat 0x%02X = %d, want %d", tt.raw, rec.Repeat, tt.want)
		}
	}
}

func TestDecodeRecordRPMHighQuirk(t *testing.T) {
	// channels 41 and 42 present, sign bit 41 set
	buf := []byte{0x00, 0x20, 0x00, 0x06, 0x02, 0x10, 0x01, 0x00}

	rec, err := DecodeRecord(buf, RecordState{}, singleEngine, MaskCarry)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if rec.State.Values[ChanRPM] != -16 {
		t.Fatalf("RPM low = %d, want -16", rec.State.Values[ChanRPM])
	}
	if rec.State.Values[ChanRPMH] != 0 {
		t.Fatalf("RPM high = %d, want 0 on single engine", rec.State.Values[ChanRPMH])
	}

	twin := Layout{Features: testFeatures, Engines: 2}
	rec, err = DecodeRecord(buf, RecordState{}, twin, MaskCarry)
	if err != nil {
		t.Fatalf("DecodeRecord twin: %v", err)
	}
	if rec.State.Values[ChanRPMH] != 1 {
		t.Fatalf("RPM high = %d, want 1 on twin", rec.State.Values[ChanRPMH])
	}
}

func TestCoolingDifferential(t *testing.T) {
	egts := []int16{1300, 1350, 1420, 1380, 1400, 1390}
	base := RecordState{}
	for i, v := range egts {
		base.Values[i] = v
	}
	noop := []byte{0x00, 0x00, 0x00, 0x00}

	tests := []struct {
		name   string
		layout Layout
		na     []Channel
		diff   int
		ok     bool
	}{
		{name: "all available", layout: singleEngine, diff: 120, ok: true},
		{name: "hottest unavailable", layout: singleEngine, na: []Channel{2}, diff: 100, ok: true},
		{name: "single cylinder", layout: singleEngine, na: []Channel{0, 1, 3, 4, 5}, diff: 0, ok: true},
		{name: "none available", layout: singleEngine, na: []Channel{0, 1, 2, 3, 4, 5}, ok: false},
		{name: "twin with nine cylinders", layout: Layout{Features: 0x1FF << 2, Engines: 2}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := base
			for _, ch := range tt.na {
				prev.NA = prev.NA.With(ch)
			}
			rec, err := DecodeRecord(noop, prev, tt.layout, MaskCarry)
			if err != nil {
				t.Fatalf("DecodeRecord: %v", err)
			}
			if rec.DiffOK[0] != tt.ok {
				t.Fatalf("DiffOK = %v, want %v", rec.DiffOK[0], tt.ok)
			}
			if tt.ok && rec.Diff[0] != tt.diff {
				t.Fatalf("Diff = %d, want %d", rec.Diff[0], tt.diff)
			}
		})
	}
}

func TestCoolingDifferentialPerEngine(t *testing.T) {
	twin := Layout{Features: testFeatures, Engines: 2}
	var prev RecordState
	for i := 0; i < 6; i++ {
		prev.Values[i] = int16(1300 + 10*i)
		prev.Values[24+i] = int16(1200 + 30*i)
	}
	rec, err := DecodeRecord([]byte{0x00, 0x00, 0x00, 0x00}, prev, twin, MaskCarry)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if !rec.DiffOK[0] || rec.Diff[0] != 50 {
		t.Fatalf("left engine diff = %d ok=%v, want 50", rec.Diff[0], rec.DiffOK[0])
	}
	if !rec.DiffOK[1] || rec.Diff[1] != 150 {
		t.Fatalf("right engine diff = %d ok=%v, want 150", rec.Diff[1], rec.DiffOK[1])
	}
}

func TestParseMaskMode(t *testing.T) {
	for in, want := range map[string]MaskMode{"": MaskCarry, "carry": MaskCarry, "Reset": MaskReset} {
		got, err := ParseMaskMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMaskMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMaskMode("sometimes"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
