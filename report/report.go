// Package report writes one record per tick of a monitoring run and
// summarises finished runs.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/westphae/gopond/kalman"
)

// Record is everything the monitor decided in one tick.
type Record struct {
	Elapsed     time.Duration
	Mode        string
	Output      float64 // Height reported for the tick, cm
	ModelHeight float64
	Measured    float64
	HasReading  bool // Measured is valid
	Overflow    bool
	Estimators  []kalman.Snapshot
}

// Sink receives tick records. Writes are append-only.
type Sink interface {
	Write(r Record) error
	Close() error
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Write(Record) error { return nil }
func (discard) Close() error       { return nil }

// Tee writes every record to all sinks and returns the first error.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Write(r Record) (err error) {
	for _, s := range t {
		if e := s.Write(r); e != nil && err == nil {
			err = e
		}
	}
	return
}

func (t tee) Close() (err error) {
	for _, s := range t {
		if e := s.Close(); e != nil && err == nil {
			err = e
		}
	}
	return
}

// OutputColumns are the columns of the output file.
var OutputColumns = []string{"time", "output", "model", "measured", "overflow", "mode"}

// bankColumns are repeated for every estimator in the bank file.
var bankColumns = []string{"time", "noise", "state", "predicted_state", "variance", "predicted_variance", "delta"}

// CSVSink writes the chosen output to one file and, optionally, the estimator
// bank to another. Both are flushed after every record.
type CSVSink struct {
	out, bank       *bufio.Writer
	closers         []io.Closer
	outFmt, bankFmt string
	vals            []interface{}
}

// NewCSVSink creates outFn and, if bankFn is not empty, bankFn.
func NewCSVSink(outFn, bankFn string) (s *CSVSink, err error) {
	var ws []io.Writer
	var cs []io.Closer
	for _, fn := range []string{outFn, bankFn} {
		if fn == "" {
			ws = append(ws, nil)
			continue
		}
		f, errf := os.Create(fn)
		if errf != nil {
			for _, c := range cs {
				c.Close()
			}
			return nil, errors.Wrapf(errf, "report: create %s", fn)
		}
		ws = append(ws, f)
		cs = append(cs, f)
	}
	s, err = NewCSVSinkWriters(ws[0], ws[1])
	if err != nil {
		for _, c := range cs {
			c.Close()
		}
		return nil, err
	}
	s.closers = cs
	return s, nil
}

// NewCSVSinkWriters writes to already open writers; bank may be nil.
func NewCSVSinkWriters(out, bank io.Writer) (*CSVSink, error) {
	if out == nil {
		return nil, errors.New("report: no output writer")
	}
	s := &CSVSink{out: bufio.NewWriter(out)}
	if bank != nil {
		s.bank = bufio.NewWriter(bank)
	}
	fmt.Fprint(s.out, strings.Join(OutputColumns, ","), "\n")
	s.outFmt = "%f,%f,%f,%f,%t,%s\n"
	return s, s.out.Flush()
}

func (s *CSVSink) bankHeader(n int) {
	h := make([]string, 0, n*len(bankColumns)+1)
	for i := 0; i < n; i++ {
		for _, c := range bankColumns {
			h = append(h, fmt.Sprintf("%s_%d", c, i))
		}
	}
	h = append(h, "measured")
	fmt.Fprint(s.bank, strings.Join(h, ","), "\n")

	f := strings.Repeat("%f,", len(h))
	s.bankFmt = f[:len(f)-1] + "\n"
	s.vals = make([]interface{}, len(h))
}

func (s *CSVSink) Write(r Record) error {
	t := r.Elapsed.Seconds()
	fmt.Fprintf(s.out, s.outFmt, t, r.Output, r.ModelHeight, r.Measured, r.Overflow, r.Mode)
	if err := s.out.Flush(); err != nil {
		return errors.Wrap(err, "report: output")
	}

	if s.bank == nil || !r.HasReading || len(r.Estimators) == 0 {
		return nil
	}
	if s.bankFmt == "" {
		s.bankHeader(len(r.Estimators))
	}
	if len(r.Estimators)*len(bankColumns)+1 != len(s.vals) {
		return errors.Errorf("report: bank grew from %d to %d estimators",
			(len(s.vals)-1)/len(bankColumns), len(r.Estimators))
	}
	i := 0
	for _, e := range r.Estimators {
		for _, v := range []float64{t, e.ProcessNoise, e.State, e.PredictedState, e.Variance, e.PredictedVariance, e.Delta} {
			s.vals[i] = v
			i++
		}
	}
	s.vals[i] = r.Measured
	fmt.Fprintf(s.bank, s.bankFmt, s.vals...)
	return errors.Wrap(s.bank.Flush(), "report: bank")
}

func (s *CSVSink) Close() error {
	var first error
	if err := s.out.Flush(); err != nil {
		first = err
	}
	if s.bank != nil {
		if err := s.bank.Flush(); err != nil && first == nil {
			first = err
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
