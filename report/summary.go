package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a series of residuals.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	RMSE   float64
	P95    float64 // 95th percentile of the absolute residual
	MaxAbs float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d mean=%.3f sd=%.3f rmse=%.3f p95=%.3f max=%.3f",
		s.N, s.Mean, s.StdDev, s.RMSE, s.P95, s.MaxAbs)
}

// Summarize computes the statistics of xs.
func Summarize(xs []float64) (s Summary) {
	s.N = len(xs)
	if s.N == 0 {
		return
	}
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	if s.N == 1 {
		s.StdDev = 0
	}

	abs := make([]float64, len(xs))
	sq := make([]float64, len(xs))
	for i, x := range xs {
		abs[i] = math.Abs(x)
		sq[i] = x * x
	}
	s.RMSE = math.Sqrt(stat.Mean(sq, nil))
	s.MaxAbs = floats.Max(abs)
	sort.Float64s(abs)
	s.P95 = stat.Quantile(0.95, stat.Empirical, abs, nil)
	return
}

// DeltaWindow is a Sink keeping the last Size prediction errors of every
// estimator, so a run of any length summarises in bounded memory.
type DeltaWindow struct {
	Size int

	deltas [][]float64
	next   []int
}

// DefaultDeltaWindow is a day of 10 s ticks.
const DefaultDeltaWindow = 8640

func NewDeltaWindow(size int) *DeltaWindow {
	if size < 1 {
		size = 1
	}
	return &DeltaWindow{Size: size}
}

func (w *DeltaWindow) Write(r Record) error {
	if !r.HasReading {
		return nil
	}
	for i, e := range r.Estimators {
		if i >= len(w.deltas) {
			w.deltas = append(w.deltas, make([]float64, 0, min(w.Size, 64)))
			w.next = append(w.next, 0)
		}
		if len(w.deltas[i]) < w.Size {
			w.deltas[i] = append(w.deltas[i], e.Delta)
			continue
		}
		w.deltas[i][w.next[i]] = e.Delta
		w.next[i] = (w.next[i] + 1) % w.Size
	}
	return nil
}

func (w *DeltaWindow) Close() error { return nil }

// Summaries summarises each estimator's window, indexed like the bank.
func (w *DeltaWindow) Summaries() []Summary {
	s := make([]Summary, len(w.deltas))
	for i, d := range w.deltas {
		s[i] = Summarize(d)
	}
	return s
}

// DeltaSummaries summarises each estimator's prediction error over recs.
func DeltaSummaries(recs []Record) []Summary {
	w := NewDeltaWindow(len(recs))
	for _, r := range recs {
		w.Write(r)
	}
	return w.Summaries()
}

// Point is one value of a time series, time in seconds.
type Point struct {
	T, V float64
}

// ReadSeries reads the time column and valueCol column of a CSV with a header row.
// With valueCol empty the first two columns are used and a header is optional.
func ReadSeries(in io.Reader, valueCol string) ([]Point, error) {
	r := csv.NewReader(bufio.NewReader(in))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	ti, vi := 0, 1
	var pts []Point
	for row := 0; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "report: row %d", row)
		}

		if row == 0 && valueCol != "" {
			fields := make(map[string]int)
			for i, k := range rec {
				fields[k] = i
			}
			var ok bool
			if vi, ok = fields[valueCol]; !ok {
				return nil, errors.Errorf("report: no column %q", valueCol)
			}
			ti = fields["time"]
			continue
		}
		if len(rec) <= ti || len(rec) <= vi {
			continue
		}

		t, errt := strconv.ParseFloat(rec[ti], 64)
		v, errv := strconv.ParseFloat(rec[vi], 64)
		if errt != nil || errv != nil {
			if row > 0 {
				log.Warnf("report: row %d not numeric, skipping this one", row)
			}
			continue
		}
		pts = append(pts, Point{t, v})
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].T < pts[j].T })
	return pts, nil
}

// ReadSeriesFile is ReadSeries on a file.
func ReadSeriesFile(fn, valueCol string) ([]Point, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrap(err, "report: open")
	}
	defer f.Close()
	return ReadSeries(f, valueCol)
}

// Residuals pairs each point of got with the latest control value at or before
// it and returns got minus control. Points before the first control value are dropped.
func Residuals(got, control []Point) []float64 {
	var res []float64
	for _, p := range got {
		i := sort.Search(len(control), func(i int) bool { return control[i].T > p.T }) - 1
		if i < 0 {
			continue
		}
		res = append(res, p.V-control[i].V)
	}
	return res
}
