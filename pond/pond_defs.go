// Package pond models the hydraulics of a stormwater retention pond:
// rain on the catchment flows in, water drains through a bottom orifice.
package pond

import (
	"fmt"
	"strings"
)

const (
	G              = 9.81 // Gravitational acceleration, m/s²
	MaxOrificeDiam = 17.5 // Fully open orifice diameter, cm
	cmPerM         = 100
	m2PerHa        = 10000
	mmPerM         = 1000
)

// Orifice is a preset outlet opening.
type Orifice int

const (
	OrificeMax Orifice = iota
	OrificeMed
	OrificeMin
)

var orificeNames = map[string]Orifice{
	"max": OrificeMax,
	"med": OrificeMed,
	"min": OrificeMin,
}

// Diameter in cm for the preset.
func (o Orifice) Diameter() float64 {
	switch o {
	case OrificeMed:
		return MaxOrificeDiam * 4 / 7
	case OrificeMin:
		return MaxOrificeDiam / 7
	default:
		return MaxOrificeDiam
	}
}

func (o Orifice) String() string {
	switch o {
	case OrificeMed:
		return "med"
	case OrificeMin:
		return "min"
	default:
		return "max"
	}
}

// ParseOrifice is the strict preset lookup used when reading configuration.
func ParseOrifice(s string) (Orifice, error) {
	if o, ok := orificeNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return o, nil
	}
	return OrificeMax, fmt.Errorf("pond: unknown orifice preset %q, want one of max, med, min", s)
}

// Params describe a pond and its catchment.
type Params struct {
	CatchmentArea         float64 // Catchment draining into the pond, ha
	SurfaceReactionFactor float64 // Share of rainfall that runs off into the pond
	DischargeCoefficient  float64 // Orifice discharge coefficient
	PondArea              float64 // Pond surface area, m²
	WaterLevel            float64 // Current water height, cm
	WaterLevelMin         float64 // Lowest possible water height, cm
	WaterLevelMax         float64 // Height at which the pond overflows, cm
	OrificeDiameter       float64 // Current orifice diameter, cm
}

// ProcessState is what the filter needs to predict the next height from the model.
type ProcessState struct {
	InflowRate  float64 // m³/s, averaged over the tick
	OutflowRate float64 // m³/s, averaged over the tick
	SurfaceArea float64 // m²
}

// StepResult is the outcome of simulating one tick.
type StepResult struct {
	Height     float64 // Water height at the end of the tick, cm
	Overflow   bool    // The height was pinned at WaterLevelMax during the tick
	AvgInflow  float64 // m³/s
	AvgOutflow float64 // m³/s
	AvgSpill   float64 // m³/s taken away by the level limits, negative when held at the minimum
}
