package analysis

import (
	"sort"
	"time"

	"example.com/edmgate/internal/jpi"
)

// Summary bundles the derived metrics of one flight.
type Summary struct {
	FlightID     uint16        `json:"flightId"`
	Registration string        `json:"registration"`
	Model        int           `json:"model"`
	Start        time.Time     `json:"start"`
	Duration     time.Duration `json:"duration"`
	Interval     time.Duration `json:"interval"`
	Samples      int           `json:"samples"`
	Records      int           `json:"records"`
	Status       string        `json:"status"`
	Features     string        `json:"features"`
	FuelUsed     float64       `json:"fuelUsed"`
	FuelUnit     string        `json:"fuelUnit"`
	Peaks        []Peak        `json:"peaks"`
	Alarms       []Interval    `json:"alarms"`
	Outages      []NAInterval  `json:"outages"`
}

// Summarize computes every metric the flight supports. Kinds the device
// does not record and kinds without a programmed limit are left out.
func Summarize(hdr *jpi.FileHeader, f *jpi.Flight) Summary {
	sum := Summary{
		FlightID: f.Header.ID,
		Start:    f.Header.Start,
		Duration: f.Duration(),
		Interval: f.Header.Interval,
		Samples:  len(f.Samples),
		Records:  f.Records,
		Status:   f.Status.String(),
		Features: f.Layout.Features.String(),
		Peaks:    []Peak{},
		Alarms:   []Interval{},
		Outages:  []NAInterval{},
	}
	var limits jpi.AlarmLimits
	ff := jpi.FuelFlowConfig{Unit: jpi.FuelLPH}
	if hdr != nil {
		sum.Registration = hdr.Registration
		sum.Model = hdr.Config.Model
		limits = hdr.Alarms
		ff = hdr.FuelFlow
	}
	if f.Layout.Features.FuelFlow() {
		sum.FuelUsed = FuelUsed(f, ff)
		sum.FuelUnit = ff.Unit.Quantity()
	}
	for _, k := range Kinds {
		p, err := PeakOf(f, k)
		if err == nil {
			sum.Peaks = append(sum.Peaks, p)
		}
		ivs, err := WarningIntervals(f, limits, k)
		if err != nil {
			continue
		}
		sum.Alarms = append(sum.Alarms, ivs...)
	}
	sort.SliceStable(sum.Alarms, func(i, j int) bool { return sum.Alarms[i].Start < sum.Alarms[j].Start })
	na := NAIntervals(f)
	for c := 0; c < jpi.NumChannels; c++ {
		sum.Outages = append(sum.Outages, na[jpi.Channel(c)]...)
	}
	return sum
}
