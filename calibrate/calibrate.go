// Package calibrate converts raw sensor distances to water heights.
package calibrate

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/skelterjohn/go.matrix"
)

// Gauge is a linear map from sensor distance to water height:
// height = Offset + Scale*distance.
// A downward-looking sensor mounted at m cm has Offset m and Scale -1.
type Gauge struct {
	Offset float64 `yaml:"offset"`
	Scale  float64 `yaml:"scale"`
}

// Identity reports the distance as the height.
var Identity = Gauge{Offset: 0, Scale: 1}

func (g Gauge) Height(distance float64) float64 {
	return g.Offset + g.Scale*distance
}

// Variance converts a distance variance to a height variance.
func (g Gauge) Variance(v float64) float64 {
	return g.Scale * g.Scale * v
}

func (g Gauge) String() string {
	return fmt.Sprintf("height = %g + %g*distance", g.Offset, g.Scale)
}

// Point is a reference measurement: what the sensor read and the true height.
type Point struct {
	Distance float64
	Height   float64
}

var ErrDegenerate = errors.New("calibrate: need at least two distinct distances")

// Fit finds the least-squares gauge through pts and returns it with the RMS residual.
func Fit(pts []Point) (g Gauge, rms float64, err error) {
	n := len(pts)
	if n < 2 {
		return g, 0, ErrDegenerate
	}

	xs := make([]float64, 2*n)
	ys := make([]float64, n)
	for i, p := range pts {
		xs[2*i] = 1
		xs[2*i+1] = p.Distance
		ys[i] = p.Height
	}
	x := matrix.MakeDenseMatrix(xs, n, 2)
	y := matrix.MakeDenseMatrix(ys, n, 1)

	// beta = (XᵀX)⁻¹Xᵀy
	xtx := matrix.Product(x.Transpose(), x)
	if math.Abs(xtx.Det()) < 1e-9 {
		return g, 0, ErrDegenerate
	}
	inv, err := xtx.Inverse()
	if err != nil {
		return g, 0, fmt.Errorf("calibrate: %s", err)
	}
	beta := matrix.Product(inv, matrix.Product(x.Transpose(), y))
	g = Gauge{Offset: beta.Get(0, 0), Scale: beta.Get(1, 0)}

	var ss float64
	for _, p := range pts {
		r := g.Height(p.Distance) - p.Height
		ss += r * r
	}
	return g, math.Sqrt(ss / float64(n)), nil
}
