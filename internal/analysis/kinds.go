// Package analysis derives peaks, alarm intervals, sensor outages and fuel
// burn from decoded flights. Every function is read-only over its inputs.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"example.com/edmgate/internal/jpi"
)

var (
	// ErrUnsupported means the device has no sensor for the requested kind.
	ErrUnsupported = errors.New("analysis: sensor not installed")
	// ErrNoLimit means the kind has no programmed alarm limit.
	ErrNoLimit = errors.New("analysis: no alarm limit")
	// ErrNoData means every sample had the sensor unavailable.
	ErrNoData = errors.New("analysis: no available samples")
)

// Kind is a tracked sensor category.
type Kind int

const (
	KindCHT Kind = iota
	KindEGT
	KindTIT
	KindOilHigh
	KindOilLow
	KindBatteryHigh
	KindBatteryLow
	KindCLD
	KindDiff
	KindMAP
	KindOATLow
	KindRPM
	KindFuelFlow
)

// Kinds lists every kind in report order.
var Kinds = []Kind{
	KindCHT, KindEGT, KindTIT, KindOilHigh, KindOilLow, KindBatteryHigh,
	KindBatteryLow, KindCLD, KindDiff, KindMAP, KindOATLow, KindRPM, KindFuelFlow,
}

type direction int

const (
	above direction = iota
	below
	// belowNegated alarms when the value drops under -limit (shock cooling).
	belowNegated
)

type kindInfo struct {
	name     string
	max      bool
	alarm    direction
	feature  func(jpi.FeatureMask) bool
	limit    func(jpi.AlarmLimits) int
	channels func(jpi.Layout) []jpi.Channel
}

func hasCylinders(m jpi.FeatureMask) bool { return m.Cylinders() > 0 }

// perEngine returns the channel of each installed engine bank.
func perEngine(left, right jpi.Channel) func(jpi.Layout) []jpi.Channel {
	return func(l jpi.Layout) []jpi.Channel {
		if l.Engines > 1 {
			return []jpi.Channel{left, right}
		}
		return []jpi.Channel{left}
	}
}

func bothBanks(get func(jpi.Layout, int) []jpi.Channel) func(jpi.Layout) []jpi.Channel {
	return func(l jpi.Layout) []jpi.Channel {
		out := get(l, 0)
		if l.Engines > 1 {
			out = append(out, get(l, 1)...)
		}
		return out
	}
}

var kindTable = map[Kind]kindInfo{
	KindCHT: {name: "CHT", max: true, feature: hasCylinders,
		limit:    func(a jpi.AlarmLimits) int { return a.CHT },
		channels: bothBanks(jpi.Layout.CHTChannels)},
	KindEGT: {name: "EGT", max: true, feature: hasCylinders,
		channels: bothBanks(jpi.Layout.EGTChannels)},
	KindTIT: {name: "TIT", max: true, feature: jpi.FeatureMask.TIT,
		limit: func(a jpi.AlarmLimits) int { return a.TIT },
		channels: func(l jpi.Layout) []jpi.Channel {
			out := []jpi.Channel{jpi.ChanTIT1}
			if l.Features.TIT2() {
				out = append(out, jpi.ChanTIT2)
			}
			if l.Engines > 1 {
				out = append(out, jpi.ChanRTIT)
			}
			return out
		}},
	KindOilHigh: {name: "OIL-HI", max: true, feature: jpi.FeatureMask.Oil,
		limit:    func(a jpi.AlarmLimits) int { return a.OilHigh },
		channels: perEngine(jpi.ChanOIL, jpi.ChanROIL)},
	KindOilLow: {name: "OIL-LO", alarm: below, feature: jpi.FeatureMask.Oil,
		limit:    func(a jpi.AlarmLimits) int { return a.OilLow },
		channels: perEngine(jpi.ChanOIL, jpi.ChanROIL)},
	KindBatteryHigh: {name: "BAT-HI", max: true, feature: jpi.FeatureMask.Battery,
		limit:    func(a jpi.AlarmLimits) int { return a.VoltsHigh },
		channels: perEngine(jpi.ChanBAT, jpi.ChanBAT)},
	KindBatteryLow: {name: "BAT-LO", alarm: below, feature: jpi.FeatureMask.Battery,
		limit:    func(a jpi.AlarmLimits) int { return a.VoltsLow },
		channels: perEngine(jpi.ChanBAT, jpi.ChanBAT)},
	KindCLD: {name: "CLD", alarm: belowNegated, feature: jpi.FeatureMask.CLD,
		limit:    func(a jpi.AlarmLimits) int { return a.CLD },
		channels: perEngine(jpi.ChanCLD, jpi.ChanRCLD)},
	KindDiff: {name: "DIF", max: true, feature: hasCylinders,
		limit: func(a jpi.AlarmLimits) int { return a.Diff }},
	KindMAP: {name: "MAP", max: true, feature: jpi.FeatureMask.MAP,
		channels: perEngine(jpi.ChanMAP, jpi.ChanMAP)},
	KindOATLow: {name: "OAT-LO", feature: jpi.FeatureMask.Temp,
		channels: perEngine(jpi.ChanOAT, jpi.ChanOAT)},
	KindRPM: {name: "RPM", max: true, feature: jpi.FeatureMask.RPM},
	KindFuelFlow: {name: "FF", max: true, feature: jpi.FeatureMask.FuelFlow,
		channels: perEngine(jpi.ChanFF, jpi.ChanRFF)},
}

func (k Kind) info() (kindInfo, bool) {
	info, ok := kindTable[k]
	return info, ok
}

func (k Kind) String() string {
	if info, ok := k.info(); ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind accepts the names printed by String, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// Supported reports whether the device recorded the sensor behind k.
func Supported(m jpi.FeatureMask, k Kind) bool {
	info, ok := k.info()
	return ok && info.feature(m)
}

// series is one time series a kind is evaluated over.
type series struct {
	channel jpi.Channel
	label   string
	at      func(*jpi.Sample) (int, bool)
}

func channelSeries(ch jpi.Channel) series {
	return series{channel: ch, label: ch.Name(), at: func(s *jpi.Sample) (int, bool) { return s.Value(ch) }}
}

func (k Kind) series(f *jpi.Flight) ([]series, error) {
	info, ok := k.info()
	if !ok {
		return nil, fmt.Errorf("unknown kind %d", int(k))
	}
	if !info.feature(f.Layout.Features) {
		return nil, fmt.Errorf("%s: %w", info.name, ErrUnsupported)
	}
	switch k {
	case KindDiff:
		out := []series{diffSeries(0, "DIF")}
		if f.Layout.Engines > 1 {
			out = append(out, diffSeries(1, "R-DIF"))
		}
		return out, nil
	case KindRPM:
		return []series{{channel: jpi.ChanRPM, label: "RPM", at: (*jpi.Sample).RPM}}, nil
	}
	seen := make(map[jpi.Channel]bool)
	var out []series
	for _, ch := range info.channels(f.Layout) {
		if seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, channelSeries(ch))
	}
	return out, nil
}

func diffSeries(engine int, label string) series {
	return series{channel: -1, label: label, at: func(s *jpi.Sample) (int, bool) {
		return s.Diff[engine], s.DiffOK[engine]
	}}
}
