/*
Package srf02 reads an SRF02 ultrasonic rangefinder over I2C.
Reference: http://www.robot-electronics.co.uk/htm/srf02techI2C.htm
*/
package srf02

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kidoman/embd"
	log "github.com/sirupsen/logrus"
	"github.com/westphae/gopond/sensors"
)

type SRF02 struct {
	i2cbus embd.I2CBus

	Address  byte
	Revision byte

	RangingDelay       time.Duration
	BurstSize          int
	MinRange, MaxRange float64

	acc     func(float64) (float64, float64, float64)
	Quality float64 // Running variance of the pings, floor for every reading
}

/*
NewSRF02 returns an SRF02 on i2cbus at address (normally srf02.Address).
The chip is probed by reading its software revision.
*/
func NewSRF02(i2cbus embd.I2CBus, address byte) (srf *SRF02, err error) {
	srf = &SRF02{
		i2cbus:       i2cbus,
		Address:      address,
		RangingDelay: RangingDelay,
		BurstSize:    BurstSize,
		MinRange:     MinRange,
		MaxRange:     MaxRange,
	}

	v := make([]byte, 1)
	if errv := srf.i2cReadBytes(RegisterCommand, v); errv != nil {
		return nil, fmt.Errorf("SRF02: couldn't find chip at address %x: %s", address, errv)
	}
	if v[0] == Busy {
		return nil, fmt.Errorf("SRF02: chip at address %x is busy or absent", address)
	}
	srf.Revision = v[0]
	return
}

// Ping takes one range measurement in cm.
func (srf *SRF02) Ping(ctx context.Context) (float64, error) {
	if err := srf.i2cWrite(RegisterCommand, CommandRangeCM); err != nil {
		return 0, &sensors.LinkError{Kind: sensors.NoReading, Msg: "start ranging", Err: err}
	}

	select {
	case <-ctx.Done():
		return 0, &sensors.LinkError{Kind: sensors.Timeout, Msg: "ranging interrupted", Err: ctx.Err()}
	case <-time.After(srf.RangingDelay):
	}

	raw := make([]byte, 2)
	if err := srf.i2cReadBytes(RegisterRangeHi, raw); err != nil {
		return 0, &sensors.LinkError{Kind: sensors.NoReading, Msg: "read range", Err: err}
	}
	return float64(uint16(raw[0])<<8 | uint16(raw[1])), nil
}

// Read averages a burst of pings. Quality is the larger of the burst variance
// and the running variance across reads.
func (srf *SRF02) Read(ctx context.Context) (sensors.Reading, error) {
	n := srf.BurstSize
	if n < 1 {
		n = 1
	}

	var sum, sum2 float64
	for i := 0; i < n; i++ {
		d, err := srf.Ping(ctx)
		if err != nil {
			return sensors.Reading{}, err
		}
		if d == 0 {
			return sensors.Reading{}, sensors.NewLinkError(sensors.ZeroReading, "the rangefinder reads zero")
		}
		if d < srf.MinRange || d > srf.MaxRange {
			return sensors.Reading{}, sensors.NewLinkError(sensors.OutOfSpec,
				"range %.0f cm outside [%.0f, %.0f]", d, srf.MinRange, srf.MaxRange)
		}
		sum += d
		sum2 += d * d
		if srf.acc == nil {
			srf.acc = sensors.NewVarianceAccumulator(d, QualityDecay)
		} else {
			_, _, srf.Quality = srf.acc(d)
		}
	}

	mean := sum / float64(n)
	burst := 0.0
	if n > 1 {
		burst = math.Max(0, (sum2-float64(n)*mean*mean)/float64(n-1))
	}
	if burst > 4*srf.Quality && srf.Quality > 0 {
		log.Warnf("srf02 warning: burst variance %.2f well above running %.2f", burst, srf.Quality)
	}

	return sensors.Reading{
		Distance: mean,
		Quality:  math.Max(burst, srf.Quality),
		T:        time.Now(),
	}, nil
}

func (srf *SRF02) i2cWrite(register, value byte) error {
	return srf.i2cbus.WriteByteToReg(srf.Address, register, value)
}

func (srf *SRF02) i2cReadBytes(register byte, value []byte) error {
	return srf.i2cbus.ReadFromReg(srf.Address, register, value)
}
