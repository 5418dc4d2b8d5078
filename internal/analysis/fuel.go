package analysis

import (
	"fmt"

	"example.com/edmgate/internal/jpi"
)

const (
	litresPerGallon   = 3.78541
	kilogramsPerPound = 0.453592
	// avgas density used to move between mass and volume
	poundsPerGallon   = 6.0
)

// FuelUsed integrates fuel flow over the flight in the unit the device was
// configured for. Each sample's flow counts until the next sample;
// unavailable readings count as zero. Twin installations add the right
// engine's flow.
func FuelUsed(f *jpi.Flight, cfg jpi.FuelFlowConfig) float64 {
	chans := []jpi.Channel{jpi.ChanFF}
	if f.Layout.Engines > 1 {
		chans = append(chans, jpi.ChanRFF)
	}
	var total float64
	for i := 0; i+1 < len(f.Samples); i++ {
		s := &f.Samples[i]
		hours := f.Samples[i+1].Time.Sub(s.Time).Hours()
		if hours <= 0 {
			continue
		}
		for _, ch := range chans {
			v, ok := s.Value(ch)
			if !ok || v <= 0 {
				continue
			}
			total += display(ch, v) * hours
		}
	}
	return total
}

// FuelUsedIn is FuelUsed converted to unit.
func FuelUsedIn(f *jpi.Flight, cfg jpi.FuelFlowConfig, unit jpi.FuelUnit) (float64, error) {
	return ConvertFuel(FuelUsed(f, cfg), cfg.Unit, unit)
}

// ConvertFuel converts an amount between gallons, pounds, litres and
// kilograms, identified by their flow units.
func ConvertFuel(amount float64, from, to jpi.FuelUnit) (float64, error) {
	gal, err := toGallons(amount, from)
	if err != nil {
		return 0, err
	}
	switch to {
	case jpi.FuelGPH:
		return gal, nil
	case jpi.FuelLPH:
		return gal * litresPerGallon, nil
	case jpi.FuelPPH:
		return gal * poundsPerGallon, nil
	case jpi.FuelKPH:
		return gal * poundsPerGallon * kilogramsPerPound, nil
	}
	return 0, fmt.Errorf("unknown fuel unit %d", int(to))
}

func toGallons(amount float64, from jpi.FuelUnit) (float64, error) {
	switch from {
	case jpi.FuelGPH:
		return amount, nil
	case jpi.FuelLPH:
		return amount / litresPerGallon, nil
	case jpi.FuelPPH:
		return amount / poundsPerGallon, nil
	case jpi.FuelKPH:
		return amount / kilogramsPerPound / poundsPerGallon, nil
	}
	return 0, fmt.Errorf("unknown fuel unit %d", int(from))
}
