// Package kalman implements the scalar water-height filter and a bank of
// shadow filters that each assume a particular sensor fault.
package kalman

import (
	"fmt"
	"strings"
)

const cmPerM = 100

// Measurement is one water height reading together with its variance.
type Measurement struct {
	Height   float64 // cm
	Variance float64 // cm²
}

// Direction says which way a fault hypothesis biases the reading.
type Direction int

const (
	Higher Direction = iota
	Lower
)

func (d Direction) String() string {
	if d == Lower {
		return "lower"
	}
	return "higher"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "higher":
		return Higher, nil
	case "lower":
		return Lower, nil
	}
	return Higher, fmt.Errorf("kalman: unknown fault direction %q, want higher or lower", s)
}

// Kind is the arithmetic a fault applies to a measured height.
type Kind int

const (
	None Kind = iota
	Add
	Subtract
	Multiply
	Divide
	Constant // Stuck sensor: the reading is replaced by Amount with no variance
)

var kindNames = []string{"none", "add", "subtract", "multiply", "divide", "constant"}

func (k Kind) String() string {
	if k < None || k > Constant {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return None, fmt.Errorf("kalman: unknown fault kind %q", s)
}

// Fault is a hypothesis about how the sensor is wrong.
// Two faults are the same hypothesis when they compare equal.
type Fault struct {
	Kind      Kind
	Amount    float64
	Direction Direction
}

// Offset is a fault that shifts readings by d cm.
func Offset(d float64, dir Direction) Fault {
	if d < 0 {
		return Fault{Kind: Subtract, Amount: -d, Direction: dir}
	}
	return Fault{Kind: Add, Amount: d, Direction: dir}
}

// Scale is a fault that multiplies readings by k.
func Scale(k float64, dir Direction) Fault {
	return Fault{Kind: Multiply, Amount: k, Direction: dir}
}

// Stuck is a fault where the sensor keeps reporting h cm.
func Stuck(h float64, dir Direction) Fault {
	return Fault{Kind: Constant, Amount: h, Direction: dir}
}

// Validate rejects faults that cannot be applied.
func (f Fault) Validate() error {
	if f.Kind < None || f.Kind > Constant {
		return fmt.Errorf("kalman: invalid fault kind %d", int(f.Kind))
	}
	if f.Direction != Higher && f.Direction != Lower {
		return fmt.Errorf("kalman: invalid fault direction %d", int(f.Direction))
	}
	if f.Kind == Divide && f.Amount == 0 {
		return fmt.Errorf("kalman: divide fault with zero amount")
	}
	return nil
}

// Apply transforms a measurement the way the hypothesised fault would.
// Only a stuck sensor changes the variance.
func (f Fault) Apply(m Measurement) Measurement {
	switch f.Kind {
	case Add:
		m.Height += f.Amount
	case Subtract:
		m.Height -= f.Amount
	case Multiply:
		m.Height *= f.Amount
	case Divide:
		m.Height /= f.Amount
	case Constant:
		m = Measurement{Height: f.Amount}
	}
	return m
}

func (f Fault) String() string {
	return fmt.Sprintf("%s %g (%s)", f.Kind, f.Amount, f.Direction)
}

// Against names what a violation was checked against.
type Against int

const (
	AgainstMeasurement Against = iota
	AgainstModel
)

// Violation is one shadow filter whose prediction crossed the reading in the
// direction its fault predicts.
type Violation struct {
	Index     int // Position in the bank
	Fault     Fault
	Direction Direction
	Against   Against
}

// AnomalyError reports that at least one fault hypothesis fits the data better
// than the nominal filter. Direction is that of the first violation.
type AnomalyError struct {
	Direction  Direction
	Violations []Violation
}

func (e *AnomalyError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Fault.String()
	}
	return fmt.Sprintf("kalman: sensor reading %s than expected, matching faults: %s",
		e.Direction, strings.Join(parts, "; "))
}
