package jpi

import "time"

// flightAssembler turns decoded records of one flight into timed samples.
type flightAssembler struct {
	flight   *Flight
	end      int
	state    RecordState
	lastDiff [MaxEngines]int
	lastOK   [MaxEngines]bool
	now      time.Time
	interval time.Duration
}

func newFlightAssembler(fh FlightHeader, layout Layout, end int) *flightAssembler {
	return &flightAssembler{
		flight: &Flight{
			Header:  fh,
			Layout:  layout,
			Samples: []Sample{},
			Status:  StatusParsing,
		},
		end:      end,
		now:      fh.Start,
		interval: fh.Interval,
	}
}

// apply appends the repeated copies of the previous state followed by the
// newly decoded state. Each sample takes the running time, which then moves
// on by the current interval; marks 2 and 3 switch the interval to one
// second and back.
func (a *flightAssembler) apply(rec Record) int {
	for i := 0; i < rec.Repeat; i++ {
		s := a.sample(a.state, a.lastDiff, a.lastOK)
		s.Repeated = true
		a.flight.Samples = append(a.flight.Samples, s)
		a.now = a.now.Add(a.interval)
	}
	a.flight.Samples = append(a.flight.Samples, a.sample(rec.State, rec.Diff, rec.DiffOK))
	switch rec.State.Mark() {
	case 2:
		a.interval = time.Second
	case 3:
		a.interval = a.flight.Header.Interval
	}
	a.now = a.now.Add(a.interval)

	a.state = rec.State
	a.lastDiff, a.lastOK = rec.Diff, rec.DiffOK
	a.flight.Records++
	return rec.Repeat + 1
}

func (a *flightAssembler) sample(st RecordState, diff [MaxEngines]int, ok [MaxEngines]bool) Sample {
	return Sample{
		Time:   a.now,
		Values: st.Values,
		NA:     st.NA,
		Diff:   diff,
		DiffOK: ok,
		Mark:   st.Mark(),
	}
}
