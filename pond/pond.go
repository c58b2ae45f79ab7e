package pond

import (
	"math"
	"time"

	"github.com/westphae/gopond/rain"
)

// WaterIn is the volume in m³ that runs into the pond from rainfallMM of rain
// on a catchment of areaHa, with runoff factor k.
func WaterIn(k, rainfallMM, areaHa float64) float64 {
	return k * (rainfallMM / mmPerM) * (areaHa * m2PerHa)
}

// WaterOut is the flow in m³/s through an orifice of diameter orificeCM
// under a head of levelCM, with discharge coefficient c.
func WaterOut(c, orificeCM, levelCM float64) float64 {
	d := orificeCM / cmPerM
	w := math.Max(levelCM, 0) / cmPerM
	return c * (math.Pi / 4) * d * d * math.Sqrt(2*G*w)
}

// Model is the virtual pond. It owns the rain source and the current level.
type Model struct {
	Params
	Rain rain.Source
}

func NewModel(p Params, r rain.Source) *Model {
	if p.OrificeDiameter <= 0 {
		p.OrificeDiameter = MaxOrificeDiam
	}
	if r == nil {
		r = rain.Const(0)
	}
	return &Model{Params: p, Rain: r}
}

// SetOrifice sets the outlet to a named preset; unknown names open it fully.
func (m *Model) SetOrifice(preset string) {
	o, _ := ParseOrifice(preset)
	m.OrificeDiameter = o.Diameter()
}

// Simulate runs the pond forward for seconds one-second sub-steps starting at
// start without changing the model.
func (m *Model) Simulate(start time.Duration, seconds int) (res StepResult) {
	var (
		p         = m.Params
		minVolume = p.PondArea * p.WaterLevelMin / cmPerM
		volume    = p.PondArea * p.WaterLevel / cmPerM
		level     = p.WaterLevel
		sumIn     float64
		sumOut    float64
		spill     float64
	)

	for s := 0; s < seconds; s++ {
		t0 := start + time.Duration(s)*time.Second
		in := WaterIn(p.SurfaceReactionFactor, m.Rain.Rainfall(t0, t0+time.Second), p.CatchmentArea)
		out := WaterOut(p.DischargeCoefficient, p.OrificeDiameter, level)
		sumIn += in
		sumOut += out

		next := volume + in - out
		if next < minVolume {
			spill -= minVolume - next
			next = minVolume
		}
		volume = next
		level = volume / p.PondArea * cmPerM
		if level > p.WaterLevelMax {
			level = p.WaterLevelMax
			next = p.PondArea * level / cmPerM
			spill += volume - next
			volume = next
			res.Overflow = true
		}
		if level < p.WaterLevelMin {
			level = p.WaterLevelMin
		}
	}

	res.Height = level
	if seconds > 0 {
		res.AvgInflow = sumIn / float64(seconds)
		res.AvgOutflow = sumOut / float64(seconds)
		res.AvgSpill = spill / float64(seconds)
	}
	return
}

// Step simulates one tick and commits the resulting height.
func (m *Model) Step(start time.Duration, seconds int) StepResult {
	res := m.Simulate(start, seconds)
	m.WaterLevel = res.Height
	return res
}

// ProcessState packages a step result for the filter. Water spilled over the
// top counts as outflow so the net flow matches the height change.
func (m *Model) ProcessState(res StepResult) ProcessState {
	return ProcessState{
		InflowRate:  res.AvgInflow,
		OutflowRate: res.AvgOutflow + res.AvgSpill,
		SurfaceArea: m.PondArea,
	}
}
