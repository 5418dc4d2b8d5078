package jpi

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	valueMaskBytes = 6
	scaleMaskBytes = 3
	signMaskBytes  = 6

	// bitmap bits 0-5 select value and sign bytes, 6-8 scale bytes
	scaleBitmapOffset = valueMaskBytes

	// MinRecordSize is the smallest possible record: bitmap and repeat
	// count. The trailing byte is checked separately.
	MinRecordSize = 3
)

// MaskMode selects what an unset decode-bitmap bit means for the mask byte
// it governs.
type MaskMode int

const (
	// MaskCarry reuses the byte from the previous record.
	MaskCarry MaskMode = iota
	// MaskReset treats the byte as zero.
	MaskReset
)

func (m MaskMode) String() string {
	switch m {
	case MaskCarry:
		return "carry"
	case MaskReset:
		return "reset"
	default:
		return "unknown"
	}
}

// ParseMaskMode accepts "carry" (or empty) and "reset".
func ParseMaskMode(s string) (MaskMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "carry":
		return MaskCarry, nil
	case "reset":
		return MaskReset, nil
	}
	return MaskCarry, fmt.Errorf("unknown mask mode %q", s)
}

type recordMasks struct {
	value [valueMaskBytes]byte
	scale [scaleMaskBytes]byte
	sign  [signMaskBytes]byte
}

// RecordState is the running channel state a record is decoded against.
// The zero value is the state at the start of every flight.
type RecordState struct {
	Values [NumChannels]int16
	NA     ChannelSet
	masks  recordMasks
}

// Mark returns the event mark carried by the state.
func (s RecordState) Mark() int { return int(s.Values[ChanMARK]) }

// Record is the outcome of decoding one wire record.
type Record struct {
	State RecordState
	// Repeat copies of the previous state precede State.
	Repeat int
	Diff   [MaxEngines]int
	DiffOK [MaxEngines]bool
	// Len is the number of bytes consumed, trailing byte included.
	Len int
}

type recordCursor struct {
	buf []byte
	pos int
}

func (c *recordCursor) next() (byte, bool) {
	if c.pos >= len(c.buf) {
		return 0, false
	}
	b := c.buf[c.pos]
	c.pos++
	return b, true
}

// DecodeRecord decodes the record at the start of buf against prev. buf must
// end where the flight ends. When the record does not fit it returns
// ErrShortBuffer and prev remains the valid state.
func DecodeRecord(buf []byte, prev RecordState, layout Layout, mode MaskMode) (Record, error) {
	var rec Record
	if len(buf) < MinRecordSize {
		return rec, ErrShortBuffer
	}
	bitmap := binary.BigEndian.Uint16(buf[0:2])
	if rc := int8(buf[2]); rc > 0 {
		rec.Repeat = int(rc)
	}
	cur := &recordCursor{buf: buf, pos: MinRecordSize}

	masks := prev.masks
	if mode == MaskReset {
		masks = recordMasks{}
	}
	for i := 0; i < valueMaskBytes; i++ {
		if bitmap&(1<<uint(i)) != 0 {
			b, ok := cur.next()
			if !ok {
				return Record{}, ErrShortBuffer
			}
			masks.value[i] = b
		}
	}
	for i := 0; i < scaleMaskBytes; i++ {
		if bitmap&(1<<uint(scaleBitmapOffset+i)) != 0 {
			b, ok := cur.next()
			if !ok {
				return Record{}, ErrShortBuffer
			}
			masks.scale[i] = b
		}
	}
	for i := 0; i < signMaskBytes; i++ {
		if bitmap&(1<<uint(i)) != 0 {
			b, ok := cur.next()
			if !ok {
				return Record{}, ErrShortBuffer
			}
			masks.sign[i] = b
		}
	}
	valueMask := littleEndianMask(masks.value[:])
	scaleMask := littleEndianMask(masks.scale[:])
	signMask := littleEndianMask(masks.sign[:])
	negative := func(ch int) bool { return signMask&(1<<uint(ch)) != 0 }

	var delta [NumChannels]int32
	na := prev.NA
	for ch := 0; ch < NumChannels; ch++ {
		if valueMask&(1<<uint(ch)) == 0 {
			continue
		}
		b, ok := cur.next()
		if !ok {
			return Record{}, ErrShortBuffer
		}
		if b == 0 {
			na = na.With(Channel(ch))
			continue
		}
		na = na.Without(Channel(ch))
		if negative(ch) {
			delta[ch] -= int32(b)
		} else {
			delta[ch] += int32(b)
		}
	}
	for bit := 0; bit < 8*scaleMaskBytes; bit++ {
		if scaleMask&(1<<uint(bit)) == 0 {
			continue
		}
		hi, ok := cur.next()
		if !ok {
			return Record{}, ErrShortBuffer
		}
		ch := scaleChannels[bit]
		if ch < 0 {
			continue
		}
		if hi == 0 {
			na = na.With(ch)
		} else {
			na = na.Without(ch)
		}
		if negative(int(ch)) {
			delta[ch] -= int32(hi) << 8
		} else {
			delta[ch] += int32(hi) << 8
		}
	}
	if layout.engines() == 1 {
		if negative(int(ChanRPM)) {
			delta[ChanRPMH] = 0
		}
		if delta[ChanRPMH] != 0 {
			na = na.Without(ChanRPMH)
		}
	}
	if _, ok := cur.next(); !ok {
		return Record{}, ErrShortBuffer
	}

	next := RecordState{NA: na, masks: masks}
	for ch := range next.Values {
		next.Values[ch] = int16(int32(prev.Values[ch]) + delta[ch])
	}
	rec.State = next
	rec.Diff, rec.DiffOK = coolingDiff(&next, layout)
	rec.Len = cur.pos
	return rec, nil
}

func littleEndianMask(b []byte) uint64 {
	var v uint64
	for i, x := range b {
		v |= uint64(x) << (8 * uint(i))
	}
	return v
}

// coolingDiff is max - min over the available cylinder channels of each
// engine bank.
func coolingDiff(s *RecordState, layout Layout) ([MaxEngines]int, [MaxEngines]bool) {
	var diff [MaxEngines]int
	var ok [MaxEngines]bool
	if !layout.diffSupported() {
		return diff, ok
	}
	for e := 0; e < layout.engines(); e++ {
		lo, hi := 0, 0
		seen := false
		for _, ch := range layout.EGTChannels(e) {
			if s.NA.Has(ch) {
				continue
			}
			v := int(s.Values[ch])
			if !seen || v < lo {
				lo = v
			}
			if !seen || v > hi {
				hi = v
			}
			seen = true
		}
		if seen {
			diff[e] = hi - lo
			ok[e] = true
		}
	}
	return diff, ok
}
