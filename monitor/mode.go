package monitor

import (
	"time"
)

// Mode is where the reported water height comes from.
type Mode int

const (
	Sensor      Mode = iota // The sensor reading is trusted
	Virtual                 // A fault is suspected, report the model
	SensorError             // The link failed, report the model and stop asking the sensor
)

func (m Mode) String() string {
	switch m {
	case Sensor:
		return "sensor"
	case Virtual:
		return "virtual"
	case SensorError:
		return "sensor_error"
	}
	return "unknown"
}

// Arbiter decides the mode. It only ever degrades: Sensor, then Virtual, then SensorError.
type Arbiter struct {
	SettlingDelay time.Duration // Anomalies before this run time are ignored

	mode    Mode
	changed time.Duration
}

func NewArbiter(settling time.Duration) *Arbiter {
	return &Arbiter{SettlingDelay: settling}
}

func (a *Arbiter) Mode() Mode {
	return a.mode
}

// Since is the run time of the last mode change.
func (a *Arbiter) Since() time.Duration {
	return a.changed
}

// Querying reports whether the sensor should still be read.
func (a *Arbiter) Querying() bool {
	return a.mode != SensorError
}

func (a *Arbiter) set(m Mode, at time.Duration) bool {
	if m <= a.mode {
		return false
	}
	a.mode = m
	a.changed = at
	return true
}

// LinkFailed moves to SensorError. It reports whether the mode changed.
func (a *Arbiter) LinkFailed(at time.Duration) bool {
	return a.set(SensorError, at)
}

// Anomaly moves to Virtual once the filters have had time to settle.
// It reports whether the mode changed.
func (a *Arbiter) Anomaly(at time.Duration) bool {
	if at <= a.SettlingDelay {
		return false
	}
	return a.set(Virtual, at)
}

// Output picks the height to report for the tick.
func (a *Arbiter) Output(measured, model float64) float64 {
	if a.mode == Sensor {
		return measured
	}
	return model
}
