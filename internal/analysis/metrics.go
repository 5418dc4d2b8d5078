package analysis

import (
	"fmt"
	"time"

	"example.com/edmgate/internal/jpi"
)

// Peak is the extreme reading of a kind over a flight.
type Peak struct {
	Kind    Kind          `json:"kind"`
	Label   string        `json:"label"`
	Channel jpi.Channel   `json:"channel"`
	Index   int           `json:"index"`
	Time    time.Time     `json:"time"`
	Offset  time.Duration `json:"offset"`
	Value   int           `json:"value"`
}

// Display scales the raw value into instrument units.
func (p Peak) Display() float64 {
	return display(p.Channel, p.Value)
}

// Interval is a run of consecutive samples beyond an alarm limit.
type Interval struct {
	Kind Kind `json:"kind"`
	// Label names the channel holding the extreme value.
	Label    string        `json:"label"`
	Channel  jpi.Channel   `json:"channel"`
	Start    int           `json:"start"`
	End      int           `json:"end"`
	Offset   time.Duration `json:"offset"`
	Duration time.Duration `json:"duration"`
	Extreme  int           `json:"extreme"`
	Limit    int           `json:"limit"`
}

// NAInterval is a run of samples with a channel unavailable.
type NAInterval struct {
	Channel  jpi.Channel   `json:"channel"`
	Start    int           `json:"start"`
	End      int           `json:"end"`
	Offset   time.Duration `json:"offset"`
	Duration time.Duration `json:"duration"`
}

func display(ch jpi.Channel, v int) float64 {
	if ch < 0 {
		return float64(v)
	}
	return float64(v) / float64(ch.Scale())
}

func better(wantMax bool, v, cur int) bool {
	if wantMax {
		return v > cur
	}
	return v < cur
}

// PeakOf scans the flight for the extreme reading of kind. Samples with the
// sensor unavailable are skipped.
func PeakOf(f *jpi.Flight, kind Kind) (Peak, error) {
	ss, err := kind.series(f)
	if err != nil {
		return Peak{}, err
	}
	info, _ := kind.info()
	var p Peak
	found := false
	for i := range f.Samples {
		s := &f.Samples[i]
		for _, sr := range ss {
			v, ok := sr.at(s)
			if !ok {
				continue
			}
			if !found || better(info.max, v, p.Value) {
				p = Peak{Kind: kind, Label: sr.label, Channel: sr.channel, Index: i, Time: s.Time, Value: v}
				found = true
			}
		}
	}
	if !found {
		return Peak{}, fmt.Errorf("%s: %w", kind, ErrNoData)
	}
	p.Offset = p.Time.Sub(f.Samples[0].Time)
	return p, nil
}

// alarmValue returns the most severe reading of s beyond limit, if any
// available channel of the kind is beyond it.
func alarmValue(ss []series, s *jpi.Sample, dir direction, limit int) (v int, sr series, hit bool) {
	for _, cand := range ss {
		x, ok := cand.at(s)
		if !ok {
			continue
		}
		var over bool
		switch dir {
		case above:
			over = x > limit
		case below:
			over = x < limit
		case belowNegated:
			over = x < -limit
		}
		if !over {
			continue
		}
		if !hit || better(dir == above, x, v) {
			v, sr, hit = x, cand, true
		}
	}
	return v, sr, hit
}

// WarningIntervals collapses consecutive samples beyond the alarm limit of
// kind into intervals. Unavailable readings never trigger or extend an
// interval. An interval lasts until the first sample after it, or until the
// last sample when it runs to the end of the flight.
func WarningIntervals(f *jpi.Flight, limits jpi.AlarmLimits, kind Kind) ([]Interval, error) {
	info, ok := kind.info()
	if !ok {
		return nil, fmt.Errorf("unknown kind %d", int(kind))
	}
	if info.limit == nil {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoLimit)
	}
	limit := info.limit(limits)
	if limit == 0 {
		return nil, fmt.Errorf("%s limit not programmed: %w", kind, ErrNoLimit)
	}
	ss, err := kind.series(f)
	if err != nil {
		return nil, err
	}
	if len(f.Samples) == 0 {
		return nil, nil
	}

	var (
		out []Interval
		cur *Interval
	)
	closeRun := func(end int) {
		if cur == nil {
			return
		}
		cur.End = end
		last := end
		if last >= len(f.Samples) {
			last = len(f.Samples) - 1
		}
		cur.Duration = f.Samples[last].Time.Sub(f.Samples[cur.Start].Time)
		out = append(out, *cur)
		cur = nil
	}
	t0 := f.Samples[0].Time
	for i := range f.Samples {
		s := &f.Samples[i]
		v, sr, hit := alarmValue(ss, s, info.alarm, limit)
		if !hit {
			closeRun(i)
			continue
		}
		if cur == nil {
			cur = &Interval{Kind: kind, Start: i, Offset: s.Time.Sub(t0), Extreme: v, Label: sr.label, Channel: sr.channel, Limit: limit}
			continue
		}
		if better(info.alarm == above, v, cur.Extreme) {
			cur.Extreme, cur.Label, cur.Channel = v, sr.label, sr.channel
		}
	}
	closeRun(len(f.Samples))
	return out, nil
}

// NAIntervals lists, per channel, the runs of samples where the sensor was
// unavailable. Channels that never dropped out are absent from the map.
func NAIntervals(f *jpi.Flight) map[jpi.Channel][]NAInterval {
	out := make(map[jpi.Channel][]NAInterval)
	if len(f.Samples) == 0 {
		return out
	}
	t0 := f.Samples[0].Time
	for c := 0; c < jpi.NumChannels; c++ {
		ch := jpi.Channel(c)
		start := -1
		flush := func(end int) {
			if start < 0 {
				return
			}
			last := end
			if last >= len(f.Samples) {
				last = len(f.Samples) - 1
			}
			out[ch] = append(out[ch], NAInterval{
				Channel:  ch,
				Start:    start,
				End:      end,
				Offset:   f.Samples[start].Time.Sub(t0),
				Duration: f.Samples[last].Time.Sub(f.Samples[start].Time),
			})
			start = -1
		}
		for i := range f.Samples {
			if f.Samples[i].NA.Has(ch) {
				if start < 0 {
					start = i
				}
				continue
			}
			flush(i)
		}
		flush(len(f.Samples))
	}
	return out
}
