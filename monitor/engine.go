// Package monitor runs the per-tick estimation loop: it steps the pond model,
// reads the sensor, runs the filter bank and decides which height to report.
package monitor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/westphae/gopond/calibrate"
	"github.com/westphae/gopond/clock"
	"github.com/westphae/gopond/kalman"
	"github.com/westphae/gopond/pond"
	"github.com/westphae/gopond/report"
	"github.com/westphae/gopond/sensors"
)

const DefaultReadTimeout = 5 * time.Second

// ErrorReporter keeps a record of link failures.
type ErrorReporter interface {
	ReportLinkError(t time.Time, le *sensors.LinkError) error
}

// Engine owns everything that changes from tick to tick. It is not safe for concurrent use.
type Engine struct {
	Clock   *clock.Clock
	Pond    *pond.Model
	Bank    *kalman.Bank
	Arbiter *Arbiter
	Link    sensors.Link
	Gauge   calibrate.Gauge
	Sink    report.Sink

	Errors      ErrorReporter // Optional
	ReadTimeout time.Duration
	Now         func() time.Time

	reads int
}

// Result is the outcome of one tick.
type Result struct {
	report.Record
	Mode    Mode // Record.Mode carries its name
	Step    pond.StepResult
	LinkErr *sensors.LinkError
	Anomaly *kalman.AnomalyError
}

// NewEngine wires an engine with an identity gauge and no reporting.
func NewEngine(c *clock.Clock, p *pond.Model, b *kalman.Bank, a *Arbiter, l sensors.Link) *Engine {
	return &Engine{
		Clock:       c,
		Pond:        p,
		Bank:        b,
		Arbiter:     a,
		Link:        l,
		Gauge:       calibrate.Identity,
		Sink:        report.Discard,
		ReadTimeout: DefaultReadTimeout,
		Now:         time.Now,
	}
}

// Reads is how many times the sensor has been queried.
func (e *Engine) Reads() int {
	return e.reads
}

// Tick advances the run by one tick. It always produces a result; failures
// only change the mode.
func (e *Engine) Tick(ctx context.Context) (res Result) {
	e.Clock.Advance()
	now := e.Clock.Elapsed()

	res.Step = e.Pond.Step(e.Clock.TickStart(), e.Clock.WholeSeconds())
	if res.Step.Overflow {
		log.WithField("t", now).Warn("virtual pond is overflowing")
	}

	if e.Arbiter.Querying() {
		e.sense(ctx, now, &res)
	}

	res.Elapsed = now
	res.Mode = e.Arbiter.Mode()
	res.Record.Mode = res.Mode.String()
	res.ModelHeight = res.Step.Height
	res.Overflow = res.Step.Overflow
	res.Output = e.Arbiter.Output(res.Measured, res.Step.Height)
	if res.HasReading {
		res.Estimators = e.Bank.Snapshot()
	}

	if err := e.Sink.Write(res.Record); err != nil {
		log.WithError(err).Error("couldn't write tick record")
	}
	return
}

func (e *Engine) sense(ctx context.Context, now time.Duration, res *Result) {
	rctx, cancel := context.WithTimeout(ctx, e.ReadTimeout)
	defer cancel()

	e.reads++
	r, err := e.Link.Read(rctx)
	if err != nil {
		le := sensors.AsLinkError(err)
		res.LinkErr = le
		log.WithFields(log.Fields{"t": now, "kind": le.Kind}).Error(le.Kind.Advice())
		log.WithField("t", now).Debug(le)
		if e.Errors != nil {
			if errr := e.Errors.ReportLinkError(e.Now(), le); errr != nil {
				log.WithError(errr).Error("couldn't store link error report")
			}
		}
		if e.Arbiter.LinkFailed(now) {
			log.WithField("t", now).Info("sensor abandoned, reporting the virtual pond from now on")
		}
		return
	}

	m := kalman.Measurement{Height: e.Gauge.Height(r.Distance), Variance: e.Gauge.Variance(r.Quality)}
	res.Measured = m.Height
	res.HasReading = true

	err = e.Bank.Step(e.Pond.ProcessState(res.Step), m, res.Step.Height)
	var anomaly *kalman.AnomalyError
	if errors.As(err, &anomaly) {
		res.Anomaly = anomaly
		log.WithFields(log.Fields{"t": now, "direction": anomaly.Direction}).Warn(anomaly)
		if e.Arbiter.Anomaly(now) {
			log.WithField("t", now).Info("sensor distrusted, reporting the virtual pond from now on")
		}
	}
}

// Run ticks until the run time reaches until or ctx is done, without pacing.
// Records only go to the sink. It returns the number of ticks run.
func (e *Engine) Run(ctx context.Context, until time.Duration) (n int) {
	for e.Clock.Elapsed() < until && ctx.Err() == nil {
		e.Tick(ctx)
		n++
	}
	return
}
