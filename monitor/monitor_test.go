package monitor

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westphae/gopond/clock"
	"github.com/westphae/gopond/config"
	"github.com/westphae/gopond/kalman"
	"github.com/westphae/gopond/pond"
	"github.com/westphae/gopond/rain"
	"github.com/westphae/gopond/report"
	"github.com/westphae/gopond/sensors"
)

// scriptedLink answers the i-th read with replies[i]; past the end it repeats the last one.
type scriptedLink struct {
	replies []func() (sensors.Reading, error)
	calls   int
}

func (l *scriptedLink) Read(ctx context.Context) (sensors.Reading, error) {
	i := l.calls
	l.calls++
	if i >= len(l.replies) {
		i = len(l.replies) - 1
	}
	return l.replies[i]()
}

func reading(d float64) func() (sensors.Reading, error) {
	return func() (sensors.Reading, error) { return sensors.Reading{Distance: d, Quality: 3}, nil }
}

func failing(kind sensors.ErrKind) func() (sensors.Reading, error) {
	return func() (sensors.Reading, error) { return sensors.Reading{}, sensors.NewLinkError(kind, "scripted") }
}

type recordingSink struct {
	recs   []report.Record
	closed bool
}

func (s *recordingSink) Write(r report.Record) error {
	s.recs = append(s.recs, r)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

type recordingReporter struct {
	errs []*sensors.LinkError
}

func (r *recordingReporter) ReportLinkError(_ time.Time, le *sensors.LinkError) error {
	r.errs = append(r.errs, le)
	return nil
}

func newTestEngine(t *testing.T, l sensors.Link, settling time.Duration, faults ...kalman.Fault) (*Engine, *recordingSink) {
	c, err := clock.New(10 * time.Second)
	require.NoError(t, err)
	m := pond.NewModel(pond.Params{
		CatchmentArea:         1.85,
		SurfaceReactionFactor: 0.25,
		DischargeCoefficient:  0.6,
		PondArea:              5572,
		WaterLevel:            300,
		WaterLevelMin:         100,
		WaterLevelMax:         850,
	}, rain.Const(0))
	m.SetOrifice("med")
	b := kalman.NewBank(kalman.NewEstimator(300, 10, 0.1, c.TickSeconds()))
	b.AddAll(faults...)

	e := NewEngine(c, m, b, NewArbiter(settling), l)
	s := &recordingSink{}
	e.Sink = s
	return e, s
}

func TestArbiterOnlyDegrades(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		a := NewArbiter(30 * time.Second)
		prev := a.Mode()
		for i := 1; i <= 50; i++ {
			at := time.Duration(i) * 10 * time.Second
			switch r.Intn(3) {
			case 0:
				a.LinkFailed(at)
			case 1:
				a.Anomaly(at)
			}
			assert.GreaterOrEqual(t, a.Mode(), prev)
			if prev != Sensor {
				assert.NotEqual(t, Sensor, a.Mode())
			}
			if prev == SensorError {
				assert.Equal(t, SensorError, a.Mode())
			}
			prev = a.Mode()
		}
	}
}

func TestArbiterSettling(t *testing.T) {
	a := NewArbiter(30 * time.Second)
	assert.False(t, a.Anomaly(10*time.Second))
	assert.False(t, a.Anomaly(30*time.Second))
	assert.Equal(t, Sensor, a.Mode())
	assert.True(t, a.Anomaly(40*time.Second))
	assert.False(t, a.Anomaly(50*time.Second))
	assert.Equal(t, Virtual, a.Mode())
	assert.Equal(t, 40*time.Second, a.Since())
	assert.Equal(t, 7.0, a.Output(5, 7))

	// a link failure still counts during settling
	a = NewArbiter(time.Hour)
	assert.True(t, a.LinkFailed(10*time.Second))
	assert.False(t, a.Querying())
	assert.False(t, a.Anomaly(2*time.Hour))
	assert.Equal(t, SensorError, a.Mode())
}

func TestEngineSensorMode(t *testing.T) {
	e, sink := newTestEngine(t, &scriptedLink{replies: []func() (sensors.Reading, error){reading(301)}}, time.Minute)

	res := e.Tick(context.Background())
	assert.Equal(t, Sensor, res.Mode)
	assert.Equal(t, 10*time.Second, res.Elapsed)
	assert.True(t, res.HasReading)
	assert.Equal(t, 301.0, res.Output)
	assert.Less(t, res.ModelHeight, 300.0)
	assert.Len(t, res.Estimators, 1)
	require.Len(t, sink.recs, 1)
	assert.Equal(t, res.Record, sink.recs[0])
	assert.Equal(t, "sensor", sink.recs[0].Mode)
}

func TestEngineTimeoutOnTickFive(t *testing.T) {
	replies := []func() (sensors.Reading, error){
		reading(300), reading(300), reading(299), reading(299), failing(sensors.Timeout), reading(299),
	}
	link := &scriptedLink{replies: replies}
	e, sink := newTestEngine(t, link, time.Minute)
	rep := &recordingReporter{}
	e.Errors = rep

	for i := 1; i <= 10; i++ {
		res := e.Tick(context.Background())
		if i < 5 {
			assert.Equal(t, Sensor, res.Mode, "tick %d", i)
			continue
		}
		assert.Equal(t, SensorError, res.Mode, "tick %d", i)
		assert.Equal(t, res.ModelHeight, res.Output, "tick %d", i)
		assert.False(t, res.HasReading, "tick %d", i)
	}

	assert.Equal(t, 5, link.calls)
	assert.Equal(t, 5, e.Reads())
	assert.Equal(t, Sensor.String(), sink.recs[3].Mode)
	assert.Equal(t, SensorError.String(), sink.recs[4].Mode)
	assert.Equal(t, 50*time.Second, e.Arbiter.Since())
	require.Len(t, rep.errs, 1)
	assert.Equal(t, sensors.Timeout, rep.errs[0].Kind)
	assert.Len(t, sink.recs, 10)
}

func TestEngineAnomalyAfterSettling(t *testing.T) {
	// the sensor sticks far below the pond level from tick 3 on
	replies := []func() (sensors.Reading, error){reading(300), reading(300), reading(150)}
	link := &scriptedLink{replies: replies}
	e, _ := newTestEngine(t, link, 25*time.Second, kalman.Offset(-10, kalman.Lower), kalman.Offset(10, kalman.Higher))

	var modes []Mode
	for i := 0; i < 6; i++ {
		res := e.Tick(context.Background())
		modes = append(modes, res.Mode)
		if i == 2 {
			require.NotNil(t, res.Anomaly)
			assert.Equal(t, kalman.Lower, res.Anomaly.Direction)
		}
	}

	// the tick 3 anomaly at 30s is past the settling delay
	assert.Equal(t, []Mode{Sensor, Sensor, Virtual, Virtual, Virtual, Virtual}, modes)
	assert.Equal(t, 6, link.calls)
}

func TestEngineIgnoresAnomalyWhileSettling(t *testing.T) {
	replies := []func() (sensors.Reading, error){reading(300), reading(150)}
	e, _ := newTestEngine(t, &scriptedLink{replies: replies}, time.Hour, kalman.Offset(-10, kalman.Lower))

	for i := 0; i < 5; i++ {
		res := e.Tick(context.Background())
		assert.Equal(t, Sensor, res.Mode)
		assert.Equal(t, res.Measured, res.Output)
	}
}

func TestEngineRun(t *testing.T) {
	e, sink := newTestEngine(t, &scriptedLink{replies: []func() (sensors.Reading, error){reading(300)}}, time.Minute)
	assert.Equal(t, 10, e.Run(context.Background(), 100*time.Second))
	require.Len(t, sink.recs, 10)
	assert.Equal(t, 100*time.Second, sink.recs[9].Elapsed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, e.Run(ctx, time.Hour))
	assert.Len(t, sink.recs, 10)
}

// modelLink reads back the virtual pond's own level, a sensor in perfect agreement.
type modelLink struct {
	m *pond.Model
}

func (l modelLink) Read(context.Context) (sensors.Reading, error) {
	return sensors.Reading{Distance: l.m.WaterLevel, Quality: 3}, nil
}

func TestEngineDefaultsTrustAgreeingSensor(t *testing.T) {
	for _, mm := range []float64{0, 1, 10} {
		cfg := config.Default()
		cfg.Rain.Constant = mm
		faults, err := cfg.KalmanFaults()
		require.NoError(t, err)

		c, err := clock.New(cfg.Tick)
		require.NoError(t, err)
		m := pond.NewModel(cfg.PondParams(), rain.Const(cfg.Rain.Constant))
		b := kalman.NewBank(kalman.NewEstimator(
			cfg.Filter.InitialState, cfg.Filter.InitialVariance, cfg.Filter.ProcessNoise, c.TickSeconds()))
		require.Equal(t, len(faults), b.AddAll(faults...))

		e := NewEngine(c, m, b, NewArbiter(cfg.SettlingDelay), modelLink{m})
		e.Gauge = cfg.Gauge

		// long enough to fill the pond to the top and hold it there
		for i := 0; i < 200; i++ {
			res := e.Tick(context.Background())
			require.Equal(t, Sensor, res.Mode, "rain %g tick %d: %v", mm, i+1, res.Anomaly)
			if res.Elapsed > cfg.SettlingDelay {
				assert.Nil(t, res.Anomaly, "rain %g tick %d", mm, i+1)
			}
		}
	}
}
