// Package sensors defines how the monitor talks to a water level sensor.
package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Reading is one distance measurement from the sensor.
type Reading struct {
	Distance float64   // Raw distance reported by the sensor
	Quality  float64   // Variance of Distance as estimated by the sensor
	T        time.Time // When the reading was taken
}

// Link is a connection to a level sensor. Read blocks for at most as long as ctx allows.
type Link interface {
	Read(ctx context.Context) (Reading, error)
}

// ErrKind classifies what went wrong on a link.
type ErrKind int

const (
	Timeout ErrKind = iota
	MalformedInput
	PumpOutOfBounds
	NoReading
	OutOfSpec
	ParseFailure
	ZeroReading
	Unknown
)

var errKindNames = map[ErrKind]string{
	Timeout:         "timeout",
	MalformedInput:  "malformed input",
	PumpOutOfBounds: "pump value out of bounds",
	NoReading:       "no reading",
	OutOfSpec:       "reading out of spec",
	ParseFailure:    "parse failure",
	ZeroReading:     "zero reading",
	Unknown:         "unknown",
}

var errKindAdvice = map[ErrKind]string{
	Timeout:         "no response from the sensor controller, check the connection",
	MalformedInput:  "the controller rejected a command",
	PumpOutOfBounds: "the controller got a pump value outside 0..100",
	NoReading:       "the controller did not report a distance, check the sensor",
	OutOfSpec:       "the distance is outside what the sensor can measure, check the sensor",
	ParseFailure:    "could not read a number from the controller",
	ZeroReading:     "the sensor reads zero, check the sensor",
	Unknown:         "unclassified sensor failure",
}

func (k ErrKind) String() string {
	if s, ok := errKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrKind(%d)", int(k))
}

// Advice is an operator-facing description of the failure.
func (k ErrKind) Advice() string {
	return errKindAdvice[k]
}

// LinkError is a failed read or command on a link.
type LinkError struct {
	Kind  ErrKind
	Msg   string
	Lines []string // Raw traffic received around the failure, if any
	Err   error
}

func NewLinkError(kind ErrKind, format string, a ...interface{}) *LinkError {
	return &LinkError{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

func (e *LinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sensor link: %s: %s: %s", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("sensor link: %s: %s", e.Kind, e.Msg)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// AsLinkError returns err as a *LinkError, classifying foreign errors.
func AsLinkError(err error) *LinkError {
	var le *LinkError
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LinkError{Kind: Timeout, Msg: "read deadline passed", Err: err}
	}
	return &LinkError{Kind: Unknown, Msg: "read failed", Err: err}
}
