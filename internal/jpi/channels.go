package jpi

import "strconv"

// Channel indexes one of the logical value slots carried by every sample.
type Channel int

const (
	NumChannels = 48
	MaxEngines  = 2
	// cylinders of the second engine bank start at this offset
	secondBankOffset = 24
)

const (
	ChanEGT1 Channel = 0
	ChanTIT1 Channel = 6
	ChanTIT2 Channel = 7
	ChanCHT1 Channel = 8
	ChanCLD  Channel = 14
	ChanOIL  Channel = 15
	ChanMARK Channel = 16
	ChanOILP Channel = 17
	ChanCRB  Channel = 18
	ChanIAT  Channel = 19
	ChanBAT  Channel = 20
	ChanOAT  Channel = 21
	ChanUSD  Channel = 22
	ChanFF   Channel = 23
	ChanEGT7 Channel = 24
	ChanHP   Channel = 30
	ChanRTIT Channel = 31
	ChanCHT7 Channel = 32
	ChanRCLD Channel = 38
	ChanROIL Channel = 39
	ChanMAP  Channel = 40
	ChanRPM  Channel = 41
	ChanRPMH Channel = 42
	ChanHRS  Channel = 43
	ChanRFF  Channel = 44
	ChanRUSD Channel = 45
)

type channelInfo struct {
	name  string
	scale int
}

var channelTable = [NumChannels]channelInfo{
	0: {"EGT1", 1}, 1: {"EGT2", 1}, 2: {"EGT3", 1}, 3: {"EGT4", 1}, 4: {"EGT5", 1}, 5: {"EGT6", 1},
	6: {"TIT1", 1}, 7: {"TIT2", 1},
	8: {"CHT1", 1}, 9: {"CHT2", 1}, 10: {"CHT3", 1}, 11: {"CHT4", 1}, 12: {"CHT5", 1}, 13: {"CHT6", 1},
	14: {"CLD", 1}, 15: {"OIL", 1}, 16: {"MARK", 1}, 17: {"OILP", 1}, 18: {"CRB", 1}, 19: {"IAT", 1},
	20: {"BAT", 10}, 21: {"OAT", 1}, 22: {"USD", 10}, 23: {"FF", 10},
	24: {"EGT7", 1}, 25: {"EGT8", 1}, 26: {"EGT9", 1}, 27: {"EGT10", 1}, 28: {"EGT11", 1}, 29: {"EGT12", 1},
	30: {"HP", 1}, 31: {"RTIT", 1},
	32: {"CHT7", 1}, 33: {"CHT8", 1}, 34: {"CHT9", 1}, 35: {"CHT10", 1}, 36: {"CHT11", 1}, 37: {"CHT12", 1},
	38: {"RCLD", 1}, 39: {"ROIL", 1}, 40: {"MAP", 10}, 41: {"RPM", 1}, 42: {"RPMH", 1}, 43: {"HRS", 1},
	44: {"RFF", 10}, 45: {"RUSD", 10}, 46: {"R46", 1}, 47: {"R47", 1},
}

// Name returns the mnemonic used in exports and reports.
func (c Channel) Name() string {
	if c < 0 || int(c) >= NumChannels {
		return "CH" + strconv.Itoa(int(c))
	}
	return channelTable[c].name
}

// Scale is the divisor turning a raw value into display units (volts,
// gallons per hour, inches of mercury).
func (c Channel) Scale() int {
	if c < 0 || int(c) >= NumChannels || channelTable[c].scale == 0 {
		return 1
	}
	return channelTable[c].scale
}

func (c Channel) String() string { return c.Name() }

// scaleChannels maps a scale-mask bit to the channel whose high byte it
// carries; -1 marks bits with no channel (the byte is still consumed).
var scaleChannels = func() [24]Channel {
	var t [24]Channel
	for b := range t {
		switch {
		case b < 8:
			t[b] = Channel(b)
		case b < 16:
			t[b] = Channel(secondBankOffset + b - 8)
		default:
			t[b] = -1
		}
	}
	return t
}()

// cylinder channels per engine bank, ordered by cylinder number
var (
	egtChannels = [MaxEngines][MaxCylinders]Channel{
		{0, 1, 2, 3, 4, 5, 24, 25, 26},
		{24, 25, 26, 27, 28, 29, -1, -1, -1},
	}
	chtChannels = [MaxEngines][MaxCylinders]Channel{
		{8, 9, 10, 11, 12, 13, 32, 33, 34},
		{32, 33, 34, 35, 36, 37, -1, -1, -1},
	}
)

// ChannelSet is a bit per channel, used for NA flags.
type ChannelSet uint64

func (s ChannelSet) Has(c Channel) bool {
	return c >= 0 && int(c) < NumChannels && s&(1<<uint(c)) != 0
}

func (s ChannelSet) With(c Channel) ChannelSet {
	if c < 0 || int(c) >= NumChannels {
		return s
	}
	return s | 1<<uint(c)
}

func (s ChannelSet) Without(c Channel) ChannelSet {
	if c < 0 || int(c) >= NumChannels {
		return s
	}
	return s &^ (1 << uint(c))
}

// Layout fixes the channel arrangement of one flight: the flight's own
// feature mask plus the engine count implied by the device model.
type Layout struct {
	Features FeatureMask `json:"features"`
	Engines  int         `json:"engines"`
}

// NewLayout builds the layout for a flight recorded by the given device.
func NewLayout(features FeatureMask, cfg DeviceConfig) Layout {
	return Layout{Features: features, Engines: cfg.Engines()}
}

func (l Layout) engines() int {
	if l.Engines < 1 {
		return 1
	}
	if l.Engines > MaxEngines {
		return MaxEngines
	}
	return l.Engines
}

// Cylinders returns the cylinder count per engine bank.
func (l Layout) Cylinders() int {
	return l.Features.Cylinders()
}

// EGTChannels lists the exhaust channels of an engine bank.
func (l Layout) EGTChannels(engine int) []Channel {
	return l.cylinderChannels(egtChannels, engine)
}

// CHTChannels lists the cylinder-head channels of an engine bank.
func (l Layout) CHTChannels(engine int) []Channel {
	return l.cylinderChannels(chtChannels, engine)
}

func (l Layout) cylinderChannels(table [MaxEngines][MaxCylinders]Channel, engine int) []Channel {
	if engine < 0 || engine >= l.engines() {
		return nil
	}
	n := l.Cylinders()
	if n > MaxCylinders {
		n = MaxCylinders
	}
	out := make([]Channel, 0, n)
	for j := 0; j < n; j++ {
		if ch := table[engine][j]; ch >= 0 {
			out = append(out, ch)
		}
	}
	return out
}

// diffSupported reports whether per-engine differentials can be computed;
// twin installations with more than six cylinders per bank overlap the
// second bank's slots.
func (l Layout) diffSupported() bool {
	return !(l.engines() > 1 && l.Cylinders() > 6)
}
