package kalman

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/westphae/gopond/pond"
)

func TestEstimatorStep(t *testing.T) {
	e := NewEstimator(100, 10, 0.1, 10)
	assert.Equal(t, 100.0, e.PredictedState)
	assert.Equal(t, 10.0, e.PredictedVariance)

	p := pond.ProcessState{InflowRate: 0.5572, OutflowRate: 0, SurfaceArea: 5572}
	e.Step(p, Measurement{Height: 110, Variance: 10})

	assert.InDelta(t, 105.0, e.State, 1e-9)
	assert.InDelta(t, 5.0, e.Variance, 1e-9)
	assert.InDelta(t, 105.1, e.PredictedState, 1e-9)
	assert.InDelta(t, 5.1, e.PredictedVariance, 1e-9)
	assert.Equal(t, 0.1, e.ProcessNoise)
}

func TestEstimatorConvergesToConstantReading(t *testing.T) {
	e := NewEstimator(0, 100, 0.01, 10)
	p := pond.ProcessState{SurfaceArea: 5572}
	prevErr, prevVar := 250.0, e.Variance
	for i := 0; i < 200; i++ {
		e.Step(p, Measurement{Height: 250, Variance: 4})

		// approaches from below without overshooting, never loses confidence
		assert.LessOrEqual(t, e.State, 250.0, "step %d", i)
		assert.LessOrEqual(t, 250-e.State, prevErr, "step %d", i)
		assert.LessOrEqual(t, e.Variance, prevVar, "step %d", i)
		assert.Less(t, e.Variance, 4.0, "step %d", i)
		prevErr, prevVar = 250-e.State, e.Variance
	}
	// the gain settles near Q/(Q+R), so the last few hundredths go slowly
	assert.InDelta(t, 250.0, e.State, 0.1)
}

func TestFaultApply(t *testing.T) {
	m := Measurement{Height: 200, Variance: 3}
	tests := []struct {
		f    Fault
		want float64
	}{
		{Fault{Kind: None, Amount: 7}, 200},
		{Offset(10, Lower), 210},
		{Offset(-10, Lower), 190},
		{Scale(1.5, Higher), 300},
		{Fault{Kind: Divide, Amount: 4}, 50},
	}
	for _, tt := range tests {
		got := tt.f.Apply(m)
		assert.InDelta(t, tt.want, got.Height, 1e-12, tt.f.String())
		assert.Equal(t, 3.0, got.Variance)
	}
	assert.Equal(t, Measurement{Height: 10}, Stuck(10, Lower).Apply(m))
	assert.Equal(t, Fault{Kind: Subtract, Amount: 10, Direction: Higher}, Offset(-10, Higher))
}

func TestFaultValidate(t *testing.T) {
	assert.NoError(t, Offset(10, Lower).Validate())
	assert.Error(t, Fault{Kind: Divide}.Validate())
	assert.NoError(t, Stuck(0, Lower).Validate())
	assert.Error(t, Fault{Kind: Kind(9)}.Validate())
	assert.Error(t, Fault{Direction: Direction(4)}.Validate())
}

func TestParse(t *testing.T) {
	d, err := ParseDirection("Lower")
	require.NoError(t, err)
	assert.Equal(t, Lower, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)

	k, err := ParseKind("multiply")
	require.NoError(t, err)
	assert.Equal(t, Multiply, k)
	_, err = ParseKind("modulo")
	assert.Error(t, err)
}

func newTestBank() *Bank {
	return NewBank(NewEstimator(100, 10, 0.1, 10))
}

func TestBankRejectsDuplicates(t *testing.T) {
	b := newTestBank()
	assert.True(t, b.Add(Offset(10, Lower)))
	assert.False(t, b.Add(Offset(10, Lower)))
	assert.True(t, b.Add(Offset(10, Higher)))
	assert.Equal(t, 2, b.AddAll(Offset(-10, Lower), Offset(10, Lower), Scale(2, Higher)))
	assert.Equal(t, 5, b.Len())
	assert.Nil(t, b.Member(0).Fault)
}

func TestBankShadowsDiverge(t *testing.T) {
	b := newTestBank()
	b.AddAll(Offset(10, Lower), Offset(-10, Lower))
	p := pond.ProcessState{InflowRate: 1, OutflowRate: 0.5, SurfaceArea: 5572}
	b.Step(p, Measurement{Height: 100, Variance: 1}, 100)

	nominal := b.Nominal().State
	assert.Greater(t, b.Member(1).Estimator.State, nominal)
	assert.Less(t, b.Member(2).Estimator.State, nominal)
}

func TestBankIdentityFaultsTrackNominal(t *testing.T) {
	b := NewBank(NewEstimator(120, 10, 0, 10))
	b.AddAll(Fault{Kind: None, Direction: Lower}, Offset(0, Higher), Scale(1, Lower))

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		p := pond.ProcessState{InflowRate: r.Float64(), OutflowRate: r.Float64(), SurfaceArea: 5572}
		m := Measurement{Height: 100 + 50*r.Float64(), Variance: 1 + r.Float64()}
		b.Step(p, m, m.Height)
		for j := 1; j < b.Len(); j++ {
			assert.Equal(t, b.Nominal(), b.Member(j).Estimator, "tick %d member %d", i, j)
		}
	}
}

func TestBankNoAnomalyOnNominalReadings(t *testing.T) {
	b := newTestBank()
	b.AddAll(Offset(10, Higher), Offset(-10, Lower), Scale(1.2, Higher))

	p := pond.ProcessState{InflowRate: 2, OutflowRate: 0.5, SurfaceArea: 5572}
	for i := 0; i < 30; i++ {
		m := Measurement{Height: b.Nominal().PredictedState, Variance: 1}
		assert.NoError(t, b.Step(p, m, m.Height), "tick %d", i)
	}
}

func TestBankDetectsStuckSensor(t *testing.T) {
	b := newTestBank()
	b.AddAll(Offset(10, Lower), Offset(-10, Higher))

	p := pond.ProcessState{InflowRate: 0, OutflowRate: 0, SurfaceArea: 5572}
	require.NoError(t, b.Step(p, Measurement{Height: 100, Variance: 1}, 100))

	// reading jumps far above what every filter expects
	err := b.Step(p, Measurement{Height: 300, Variance: 1}, 100)
	var anomaly *AnomalyError
	require.True(t, errors.As(err, &anomaly))
	assert.Equal(t, Higher, anomaly.Direction)
	require.Len(t, anomaly.Violations, 1)
	assert.Equal(t, 2, anomaly.Violations[0].Index)
	assert.Equal(t, AgainstMeasurement, anomaly.Violations[0].Against)
	assert.Contains(t, anomaly.Error(), "higher")
}

func TestBankModelCheck(t *testing.T) {
	p := pond.ProcessState{SurfaceArea: 5572}
	m := Measurement{Height: 100, Variance: 1}

	b := newTestBank()
	b.AddAll(Scale(2, Higher), Scale(0.5, Lower))
	err := b.Step(p, m, 150)
	var anomaly *AnomalyError
	require.True(t, errors.As(err, &anomaly))
	require.Len(t, anomaly.Violations, 1)
	assert.Equal(t, AgainstModel, anomaly.Violations[0].Against)
	assert.Equal(t, Higher, anomaly.Direction)

	// lower-biased scale faults are only checked against the model on request
	b = newTestBank()
	b.AddAll(Scale(2, Higher), Scale(0.5, Lower))
	assert.NoError(t, b.Step(p, m, 50))

	b = newTestBank()
	b.SymmetricModelCheck = true
	b.AddAll(Scale(2, Higher), Scale(0.5, Lower))
	err = b.Step(p, m, 50)
	require.True(t, errors.As(err, &anomaly))
	assert.Equal(t, Lower, anomaly.Direction)
	assert.Equal(t, 2, anomaly.Violations[0].Index)
}

func TestBankSnapshot(t *testing.T) {
	b := newTestBank()
	b.Add(Offset(10, Lower))
	b.Step(pond.ProcessState{SurfaceArea: 5572}, Measurement{Height: 90, Variance: 1}, 90)

	s := b.Snapshot()
	require.Len(t, s, 2)
	assert.Nil(t, s[0].Fault)
	assert.Equal(t, Offset(10, Lower), *s[1].Fault)
	assert.InDelta(t, 10.0, s[0].Delta, 1e-12)
	assert.InDelta(t, 10.0, s[1].Delta, 1e-12)
	assert.Equal(t, b.Nominal().State, s[0].State)
}
