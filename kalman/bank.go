package kalman

import (
	"github.com/westphae/gopond/pond"
)

// Member pairs a filter with the fault it assumes. The nominal member has a nil Fault.
type Member struct {
	Fault     *Fault
	Estimator Estimator
	delta     float64 // PredictedState before the last step minus the measured height
}

// Snapshot is the state of one member after a step, for reporting.
type Snapshot struct {
	Fault             *Fault
	State             float64
	PredictedState    float64
	Variance          float64
	PredictedVariance float64
	ProcessNoise      float64
	Delta             float64
}

// Bank runs a nominal filter alongside shadow filters fed with
// fault-transformed measurements.
type Bank struct {
	members []Member
	initial Estimator

	// SymmetricModelCheck also compares lower-biased multiply faults against
	// the model height. Off, only higher-biased ones are.
	SymmetricModelCheck bool
}

// NewBank returns a bank holding only the nominal filter, started from initial.
func NewBank(initial Estimator) *Bank {
	return &Bank{members: []Member{{Estimator: initial}}, initial: initial}
}

// Add starts a shadow filter for f from the bank's initial configuration.
// It reports false if f is already in the bank.
func (b *Bank) Add(f Fault) bool {
	for _, m := range b.members[1:] {
		if *m.Fault == f {
			return false
		}
	}
	ff := f
	b.members = append(b.members, Member{Fault: &ff, Estimator: b.initial})
	return true
}

// AddAll adds every fault, returning how many were new.
func (b *Bank) AddAll(fs ...Fault) (n int) {
	for _, f := range fs {
		if b.Add(f) {
			n++
		}
	}
	return
}

func (b *Bank) Len() int {
	return len(b.members)
}

// Nominal is the unbiased filter.
func (b *Bank) Nominal() Estimator {
	return b.members[0].Estimator
}

// Member returns the i-th member; 0 is nominal.
func (b *Bank) Member(i int) Member {
	return b.members[i]
}

// Step checks every shadow filter's current prediction against the reading and
// the model height, then steps all filters. It returns an *AnomalyError when any
// fault hypothesis is violated.
func (b *Bank) Step(p pond.ProcessState, m Measurement, modelHeight float64) error {
	var violations []Violation

	for i, mb := range b.members {
		if mb.Fault == nil {
			continue
		}
		f := *mb.Fault
		pred := mb.Estimator.PredictedState

		if f.Direction == Higher && pred < m.Height {
			violations = append(violations, Violation{i, f, Higher, AgainstMeasurement})
		} else if f.Direction == Lower && pred > m.Height {
			violations = append(violations, Violation{i, f, Lower, AgainstMeasurement})
		}

		if f.Kind != Multiply {
			continue
		}
		if f.Direction == Higher && pred < modelHeight {
			violations = append(violations, Violation{i, f, Higher, AgainstModel})
		} else if b.SymmetricModelCheck && f.Direction == Lower && pred > modelHeight {
			violations = append(violations, Violation{i, f, Lower, AgainstModel})
		}
	}

	for i := range b.members {
		mb := &b.members[i]
		mm := m
		if mb.Fault != nil {
			mm = mb.Fault.Apply(m)
		}
		mb.delta = mb.Estimator.PredictedState - m.Height
		mb.Estimator.Step(p, mm)
	}

	if len(violations) == 0 {
		return nil
	}
	return &AnomalyError{Direction: violations[0].Direction, Violations: violations}
}

// Snapshot reports every member, nominal first.
func (b *Bank) Snapshot() []Snapshot {
	s := make([]Snapshot, len(b.members))
	for i, mb := range b.members {
		e := mb.Estimator
		s[i] = Snapshot{
			Fault:             mb.Fault,
			State:             e.State,
			PredictedState:    e.PredictedState,
			Variance:          e.Variance,
			PredictedVariance: e.PredictedVariance,
			ProcessNoise:      e.ProcessNoise,
			Delta:             mb.delta,
		}
	}
	return s
}
