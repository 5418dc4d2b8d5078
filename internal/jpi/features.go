package jpi

import (
	"math/bits"
	"strconv"
	"strings"
)

// FeatureMask records which sensors a device has installed. The low word
// comes from the second field of the C header line, the high word from the
// third; flight headers carry their own copy.
//
//	bit  31 30 29 28 27 26 25 24 23 22 21 20 19..11 10..2  1  0
//	      -  m  -  d  f  -  r  i  c  2  t  o  egt    cyl    -  b
type FeatureMask uint32

const (
	FeatureBattery  FeatureMask = 1 << 0
	FeatureOil      FeatureMask = 1 << 20
	FeatureTIT      FeatureMask = 1 << 21
	FeatureTIT2     FeatureMask = 1 << 22
	FeatureCarb     FeatureMask = 1 << 23
	FeatureTemp     FeatureMask = 1 << 24
	FeatureRPM      FeatureMask = 1 << 25
	FeatureFuelFlow FeatureMask = 1 << 27
	FeatureCLD      FeatureMask = 1 << 28
	FeatureMAP      FeatureMask = 1 << 30

	MaxCylinders = 9
)

// cylinderBits and egtBits map cylinder index (0-based) to the mask bit
// announcing that cylinder's CHT and EGT probe respectively.
var (
	cylinderBits = [MaxCylinders]uint{2, 3, 4, 5, 6, 7, 8, 9, 10}
	egtBits      = [MaxCylinders]uint{11, 12, 13, 14, 15, 16, 17, 18, 19}
)

var featureNames = []struct {
	bit  FeatureMask
	name string
}{
	{FeatureBattery, "battery"},
	{FeatureOil, "oil"},
	{FeatureTIT, "tit"},
	{FeatureTIT2, "tit2"},
	{FeatureCarb, "carb"},
	{FeatureTemp, "temp"},
	{FeatureRPM, "rpm"},
	{FeatureFuelFlow, "fuelflow"},
	{FeatureCLD, "cld"},
	{FeatureMAP, "map"},
}

// NewFeatureMask combines the two flag words of the C line.
func NewFeatureMask(high, low uint16) FeatureMask {
	return FeatureMask(uint32(high)<<16 | uint32(low))
}

func (m FeatureMask) Has(f FeatureMask) bool { return m&f == f }

func (m FeatureMask) Battery() bool  { return m.Has(FeatureBattery) }
func (m FeatureMask) Oil() bool      { return m.Has(FeatureOil) }
func (m FeatureMask) TIT() bool      { return m.Has(FeatureTIT) }
func (m FeatureMask) TIT2() bool     { return m.Has(FeatureTIT2) }
func (m FeatureMask) Carb() bool     { return m.Has(FeatureCarb) }
func (m FeatureMask) Temp() bool     { return m.Has(FeatureTemp) }
func (m FeatureMask) RPM() bool      { return m.Has(FeatureRPM) }
func (m FeatureMask) FuelFlow() bool { return m.Has(FeatureFuelFlow) }
func (m FeatureMask) CLD() bool      { return m.Has(FeatureCLD) }
func (m FeatureMask) MAP() bool      { return m.Has(FeatureMAP) }

// Cylinders returns the number of cylinder probes announced by the mask.
func (m FeatureMask) Cylinders() int {
	return bits.OnesCount32(uint32(m) & cylinderMask())
}

// EGTs returns the number of exhaust probes announced by the mask.
func (m FeatureMask) EGTs() int {
	return bits.OnesCount32(uint32(m) & egtMask())
}

// HasCylinder reports whether cylinder idx (0-based) has a CHT probe.
func (m FeatureMask) HasCylinder(idx int) bool {
	if idx < 0 || idx >= MaxCylinders {
		return false
	}
	return uint32(m)&(1<<cylinderBits[idx]) != 0
}

// HasEGT reports whether cylinder idx (0-based) has an EGT probe.
func (m FeatureMask) HasEGT(idx int) bool {
	if idx < 0 || idx >= MaxCylinders {
		return false
	}
	return uint32(m)&(1<<egtBits[idx]) != 0
}

func (m FeatureMask) String() string {
	parts := []string{plural(m.Cylinders(), "cylinder")}
	for _, f := range featureNames {
		if m.Has(f.bit) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ", ")
}

func cylinderMask() uint32 {
	var v uint32
	for _, b := range cylinderBits {
		v |= 1 << b
	}
	return v
}

func egtMask() uint32 {
	var v uint32
	for _, b := range egtBits {
		v |= 1 << b
	}
	return v
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
