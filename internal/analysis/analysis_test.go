package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/edmgate/internal/jpi"
)

const sixCylinders = jpi.FeatureBattery | jpi.FeatureOil | jpi.FeatureFuelFlow | jpi.FeatureCLD | jpi.FeatureRPM | 0x3F<<2 | 0x3F<<11

var t0 = time.Date(2023, 5, 14, 10, 32, 0, 0, time.UTC)

func newFlight(features jpi.FeatureMask, engines, n int, interval time.Duration, set func(i int, s *jpi.Sample)) *jpi.Flight {
	f := &jpi.Flight{
		Header: jpi.FlightHeader{ID: 1, Features: features, Interval: interval, Start: t0},
		Layout: jpi.Layout{Features: features, Engines: engines},
		Status: jpi.StatusComplete,
	}
	for i := 0; i < n; i++ {
		s := jpi.Sample{Time: t0.Add(time.Duration(i) * interval)}
		set(i, &s)
		f.Samples = append(f.Samples, s)
	}
	return f
}

func TestPeakOfSkipsUnavailable(t *testing.T) {
	cht := [][]int16{
		{350, 360, 355, 340, 345, 350},
		{370, 380, 375, 360, 365, 370},
		{390, 400, 999, 380, 385, 390}, // CHT3 unavailable
		{395, 410, 400, 385, 390, 395},
		{380, 390, 385, 370, 375, 380},
	}
	f := newFlight(sixCylinders, 1, len(cht), 6*time.Second, func(i int, s *jpi.Sample) {
		for j, v := range cht[i] {
			s.Values[jpi.ChanCHT1+jpi.Channel(j)] = v
		}
		if i == 2 {
			s.NA = s.NA.With(jpi.ChanCHT1 + 2)
		}
	})

	p, err := PeakOf(f, KindCHT)
	require.NoError(t, err)
	assert.Equal(t, 410, p.Value)
	assert.Equal(t, 3, p.Index)
	assert.Equal(t, "CHT2", p.Label)
	assert.Equal(t, 18*time.Second, p.Offset)
}

func TestPeakOfDirectionAndSupport(t *testing.T) {
	oil := []int16{180, 175, 90, 170, 200}
	f := newFlight(sixCylinders, 1, len(oil), time.Second, func(i int, s *jpi.Sample) {
		s.Values[jpi.ChanOIL] = oil[i]
		s.Values[jpi.ChanBAT] = int16(280 + i)
		s.Values[jpi.ChanRPM] = int16(0x60 + i)
		s.Values[jpi.ChanRPMH] = 9
	})

	low, err := PeakOf(f, KindOilLow)
	require.NoError(t, err)
	assert.Equal(t, 90, low.Value)
	assert.Equal(t, 2, low.Index)

	high, err := PeakOf(f, KindOilHigh)
	require.NoError(t, err)
	assert.Equal(t, 200, high.Value)

	bat, err := PeakOf(f, KindBatteryHigh)
	require.NoError(t, err)
	assert.InDelta(t, 28.4, bat.Display(), 1e-9)

	rpm, err := PeakOf(f, KindRPM)
	require.NoError(t, err)
	assert.Equal(t, 9<<8+0x64, rpm.Value)

	_, err = PeakOf(f, KindMAP)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = PeakOf(f, KindTIT)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPeakOfNoData(t *testing.T) {
	f := newFlight(sixCylinders, 1, 3, time.Second, func(i int, s *jpi.Sample) {
		s.NA = s.NA.With(jpi.ChanOIL)
	})
	_, err := PeakOf(f, KindOilHigh)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestPeakOfDiff(t *testing.T) {
	f := newFlight(sixCylinders, 1, 3, time.Second, func(i int, s *jpi.Sample) {
		s.Diff[0] = 40 + 20*i
		s.DiffOK[0] = i != 2
	})
	p, err := PeakOf(f, KindDiff)
	require.NoError(t, err)
	assert.Equal(t, 60, p.Value)
	assert.Equal(t, "DIF", p.Label)
}

func TestWarningIntervalsCHT(t *testing.T) {
	// hottest CHT per sample; index 3 has every probe unavailable
	hot := []int16{380, 420, 430, 0, 415, 390, 405, 440}
	f := newFlight(sixCylinders, 1, len(hot), 6*time.Second, func(i int, s *jpi.Sample) {
		for j := 0; j < 6; j++ {
			s.Values[jpi.ChanCHT1+jpi.Channel(j)] = hot[i] - int16(10*j)
		}
		if i == 3 {
			for j := 0; j < 6; j++ {
				s.NA = s.NA.With(jpi.ChanCHT1 + jpi.Channel(j))
			}
		}
	})
	limits := jpi.AlarmLimits{CHT: 400}

	ivs, err := WarningIntervals(f, limits, KindCHT)
	require.NoError(t, err)
	require.Len(t, ivs, 3)

	assert.Equal(t, 1, ivs[0].Start)
	assert.Equal(t, 3, ivs[0].End)
	assert.Equal(t, 12*time.Second, ivs[0].Duration)
	assert.Equal(t, 6*time.Second, ivs[0].Offset)
	assert.Equal(t, 430, ivs[0].Extreme)
	assert.Equal(t, "CHT1", ivs[0].Label)

	assert.Equal(t, 4, ivs[1].Start)
	assert.Equal(t, 6*time.Second, ivs[1].Duration)
	assert.Equal(t, 415, ivs[1].Extreme)

	// runs to the last sample
	assert.Equal(t, 6, ivs[2].Start)
	assert.Equal(t, len(hot), ivs[2].End)
	assert.Equal(t, 6*time.Second, ivs[2].Duration)
	assert.Equal(t, 440, ivs[2].Extreme)
}

func TestWarningIntervalsDirections(t *testing.T) {
	cld := []int16{-10, -40, -75, -90, -20}
	bat := []int16{280, 240, 225, 220, 250}
	f := newFlight(sixCylinders, 1, len(cld), time.Second, func(i int, s *jpi.Sample) {
		s.Values[jpi.ChanCLD] = cld[i]
		s.Values[jpi.ChanBAT] = bat[i]
	})
	limits := jpi.AlarmLimits{CLD: 60, VoltsLow: 230, VoltsHigh: 305}

	ivs, err := WarningIntervals(f, limits, KindCLD)
	require.NoError(t, err)
	require.Len(t, ivs, 1)
	assert.Equal(t, 2, ivs[0].Start)
	assert.Equal(t, -90, ivs[0].Extreme)

	ivs, err = WarningIntervals(f, limits, KindBatteryLow)
	require.NoError(t, err)
	require.Len(t, ivs, 1)
	assert.Equal(t, 220, ivs[0].Extreme)
	assert.Equal(t, 2*time.Second, ivs[0].Duration)

	ivs, err = WarningIntervals(f, limits, KindBatteryHigh)
	require.NoError(t, err)
	assert.Empty(t, ivs)

	_, err = WarningIntervals(f, limits, KindEGT)
	assert.ErrorIs(t, err, ErrNoLimit)
	_, err = WarningIntervals(f, limits, KindOilHigh)
	assert.ErrorIs(t, err, ErrNoLimit, "zero limit means not programmed")
}

func TestWarningIntervalsIgnoreUnavailable(t *testing.T) {
	f := newFlight(sixCylinders, 1, 4, time.Second, func(i int, s *jpi.Sample) {
		s.Values[jpi.ChanOIL] = 250
		s.NA = s.NA.With(jpi.ChanOIL)
	})
	ivs, err := WarningIntervals(f, jpi.AlarmLimits{OilHigh: 230}, KindOilHigh)
	require.NoError(t, err)
	assert.Empty(t, ivs)
}

func TestNAIntervals(t *testing.T) {
	f := newFlight(sixCylinders, 1, 7, 2*time.Second, func(i int, s *jpi.Sample) {
		if i == 1 || i == 2 || i == 6 {
			s.NA = s.NA.With(jpi.ChanCHT1)
		}
	})
	na := NAIntervals(f)
	require.Len(t, na, 1)
	got := na[jpi.ChanCHT1]
	require.Len(t, got, 2)
	assert.Equal(t, NAInterval{Channel: jpi.ChanCHT1, Start: 1, End: 3, Offset: 2 * time.Second, Duration: 4 * time.Second}, got[0])
	assert.Equal(t, NAInterval{Channel: jpi.ChanCHT1, Start: 6, End: 7, Offset: 12 * time.Second, Duration: 0}, got[1])
}

func TestFuelUsed(t *testing.T) {
	f := newFlight(sixCylinders, 1, 6, 6*time.Minute, func(i int, s *jpi.Sample) {
		s.Values[jpi.ChanFF] = 100
		s.Values[jpi.ChanRFF] = 50
	})
	cfg := jpi.FuelFlowConfig{Unit: jpi.FuelGPH}
	assert.InDelta(t, 5.0, FuelUsed(f, cfg), 1e-9)

	litres, err := FuelUsedIn(f, cfg, jpi.FuelLPH)
	require.NoError(t, err)
	assert.InDelta(t, 5.0*3.78541, litres, 1e-9)

	pounds, err := FuelUsedIn(f, cfg, jpi.FuelPPH)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, pounds, 1e-9)

	twin := newFlight(sixCylinders, 2, 6, 6*time.Minute, func(i int, s *jpi.Sample) {
		s.Values[jpi.ChanFF] = 100
		s.Values[jpi.ChanRFF] = 50
	})
	assert.InDelta(t, 7.5, FuelUsed(twin, cfg), 1e-9)
}

func TestConvertFuelRoundTrip(t *testing.T) {
	units := []jpi.FuelUnit{jpi.FuelGPH, jpi.FuelPPH, jpi.FuelLPH, jpi.FuelKPH}
	for _, from := range units {
		for _, to := range units {
			v, err := ConvertFuel(12.5, from, to)
			require.NoError(t, err)
			back, err := ConvertFuel(v, to, from)
			require.NoError(t, err)
			assert.InDelta(t, 12.5, back, 1e-9, "%s -> %s", from, to)
		}
	}
	_, err := ConvertFuel(1, jpi.FuelUnit(9), jpi.FuelGPH)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	f := newFlight(sixCylinders, 1, 10, 6*time.Second, func(i int, s *jpi.Sample) {
		s.Values[jpi.ChanCHT1] = int16(380 + 5*i)
		s.Values[jpi.ChanOIL] = 190
		s.Values[jpi.ChanBAT] = 280
		s.Values[jpi.ChanFF] = 120
		if i == 4 {
			s.NA = s.NA.With(jpi.ChanOIL)
		}
	})
	hdr := &jpi.FileHeader{
		Registration: "N12345",
		Alarms:       jpi.AlarmLimits{CHT: 400, OilHigh: 230, OilLow: 90, VoltsHigh: 305, VoltsLow: 230},
		FuelFlow:     jpi.FuelFlowConfig{Unit: jpi.FuelGPH},
		Config:       jpi.DeviceConfig{Model: 830},
	}
	sum := Summarize(hdr, f)
	assert.Equal(t, "N12345", sum.Registration)
	assert.Equal(t, 54*time.Second, sum.Duration)
	assert.Equal(t, "gal", sum.FuelUnit)
	assert.InDelta(t, 12.0*54/3600, sum.FuelUsed, 1e-9)
	require.Len(t, sum.Alarms, 1)
	assert.Equal(t, KindCHT, sum.Alarms[0].Kind)
	assert.Equal(t, 5, sum.Alarms[0].Start)
	require.Len(t, sum.Outages, 1)
	assert.Equal(t, jpi.ChanOIL, sum.Outages[0].Channel)

	kinds := map[Kind]bool{}
	for _, p := range sum.Peaks {
		kinds[p.Kind] = true
	}
	assert.True(t, kinds[KindCHT])
	assert.True(t, kinds[KindFuelFlow])
	assert.False(t, kinds[KindMAP])
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("oil-lo")
	require.NoError(t, err)
	assert.Equal(t, KindOilLow, k)
	_, err = ParseKind("nope")
	assert.Error(t, err)
	assert.True(t, Supported(sixCylinders, KindCLD))
	assert.False(t, Supported(sixCylinders, KindMAP))
}
