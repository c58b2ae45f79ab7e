// Package rain provides rainfall series for the pond model.
package rain

import (
	"sort"
	"time"
)

// Source reports the average rainfall in millimetres over [start, end),
// both measured from the start of the run.
type Source interface {
	Rainfall(start, end time.Duration) float64
}

// Const rains the same amount all the time.
type Const float64

func (c Const) Rainfall(_, _ time.Duration) float64 {
	return float64(c)
}

type point struct {
	t  time.Duration
	mm float64
}

// Variable is a piecewise-constant rain series: each point holds until the next one.
type Variable struct {
	points []point
}

func NewVariable() *Variable {
	return new(Variable)
}

// Add inserts a point keeping the series sorted by time. A later point at an
// existing time is placed after it.
func (v *Variable) Add(t time.Duration, mm float64) *Variable {
	i := sort.Search(len(v.points), func(i int) bool { return v.points[i].t > t })
	v.points = append(v.points, point{})
	copy(v.points[i+1:], v.points[i:])
	v.points[i] = point{t, mm}
	return v
}

func (v *Variable) Len() int {
	return len(v.points)
}

// Rainfall is the time-weighted mean of the series over [start, end).
// Before the first point there is no rain; the last point holds forever.
// An empty interval reports the rain falling at start.
func (v *Variable) Rainfall(start, end time.Duration) float64 {
	if len(v.points) == 0 {
		return 0
	}
	// last point at or before start
	i := sort.Search(len(v.points), func(i int) bool { return v.points[i].t > start }) - 1
	if end <= start {
		if i < 0 {
			return 0
		}
		return v.points[i].mm
	}

	var total float64
	from := start
	for ; from < end; i++ {
		next := end
		if i+1 < len(v.points) && v.points[i+1].t < end {
			next = v.points[i+1].t
		}
		if i >= 0 {
			total += v.points[i].mm * (next - from).Seconds()
		}
		from = next
	}
	return total / (end - start).Seconds()
}
