package kalman

import "github.com/westphae/gopond/pond"

// Estimator is a one-dimensional Kalman filter on the water height, with the
// pond model's net flow as its control input.
type Estimator struct {
	State             float64 // Filtered height, cm
	Variance          float64 // Variance of State
	PredictedState    float64 // Height expected at the next measurement
	PredictedVariance float64 // Variance of PredictedState
	ProcessNoise      float64 // Q, added to the variance on every prediction
	TickSeconds       float64 // Time between measurements, s
}

// NewEstimator starts a filter whose first prediction is its initial state.
func NewEstimator(state, variance, noise, tickSeconds float64) Estimator {
	return Estimator{
		State:             state,
		Variance:          variance,
		PredictedState:    state,
		PredictedVariance: variance,
		ProcessNoise:      noise,
		TickSeconds:       tickSeconds,
	}
}

// Step runs the measurement update followed by the prediction for the next tick.
func (e *Estimator) Step(p pond.ProcessState, m Measurement) {
	var gain float64
	if s := e.PredictedVariance + m.Variance; s != 0 {
		gain = e.PredictedVariance / s
	}
	variance := (1 - gain) * e.Variance
	state := e.PredictedState + gain*(m.Height-e.PredictedState)

	var dh float64
	if p.SurfaceArea > 0 {
		dh = e.TickSeconds * (p.InflowRate - p.OutflowRate) / p.SurfaceArea * cmPerM
	}

	*e = Estimator{
		State:             state,
		Variance:          variance,
		PredictedState:    state + dh,
		PredictedVariance: variance + e.ProcessNoise,
		ProcessNoise:      e.ProcessNoise,
		TickSeconds:       e.TickSeconds,
	}
}
