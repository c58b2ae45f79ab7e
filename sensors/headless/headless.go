// Package headless replays recorded sensor readings in place of a live controller.
package headless

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/westphae/gopond/sensors"
)

// Invariance is the variance reported with every replayed reading.
const Invariance = 3

type sample struct {
	t        time.Duration
	distance float64
}

// Replay is a sensors.Link that serves the last recorded reading at or before
// the current run time. Before the first sample it serves the first one.
type Replay struct {
	samples []sample
	elapsed func() time.Duration

	Quality float64
	// FailAt makes every read from this run time on time out, for rehearsing a lost link.
	FailAt time.Duration
}

// Load reads "seconds,reading" records from fn.
func Load(fn string, elapsed func() time.Duration) (*Replay, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrap(err, "headless: open")
	}
	defer f.Close()
	return New(f, elapsed)
}

// New parses "seconds,reading" records. Rows that don't parse are logged and skipped.
func New(in io.Reader, elapsed func() time.Duration) (*Replay, error) {
	r := csv.NewReader(bufio.NewReader(in))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rp := &Replay{elapsed: elapsed, Quality: Invariance}
	for row := 0; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "headless: row %d", row)
		}
		if len(rec) < 2 {
			log.Warnf("headless: row %d has %d fields, skipping this one", row, len(rec))
			continue
		}
		sec, errs := strconv.ParseFloat(rec[0], 64)
		d, errd := strconv.ParseFloat(rec[1], 64)
		if errs != nil || errd != nil {
			if row > 0 {
				log.Warnf("headless: row %d not numeric (%v), skipping this one", row, rec)
			}
			continue
		}
		rp.samples = append(rp.samples, sample{time.Duration(sec * float64(time.Second)), d})
	}
	sort.SliceStable(rp.samples, func(i, j int) bool { return rp.samples[i].t < rp.samples[j].t })

	if len(rp.samples) == 0 {
		return nil, errors.New("headless: no readings")
	}
	return rp, nil
}

func (rp *Replay) Len() int {
	return len(rp.samples)
}

func (rp *Replay) Read(ctx context.Context) (sensors.Reading, error) {
	if err := ctx.Err(); err != nil {
		return sensors.Reading{}, &sensors.LinkError{Kind: sensors.Timeout, Msg: "replay cancelled", Err: err}
	}
	now := rp.elapsed()
	if rp.FailAt > 0 && now >= rp.FailAt {
		return sensors.Reading{}, sensors.NewLinkError(sensors.Timeout, "replayed link lost at %s", rp.FailAt)
	}

	i := sort.Search(len(rp.samples), func(i int) bool { return rp.samples[i].t > now }) - 1
	if i < 0 {
		i = 0
	}
	return sensors.Reading{Distance: rp.samples[i].distance, Quality: rp.Quality, T: time.Now()}, nil
}
