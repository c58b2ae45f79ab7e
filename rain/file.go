package rain

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LoadFile reads a "seconds,mm" CSV file into a Variable series.
func LoadFile(fn string) (*Variable, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrap(err, "rain: open")
	}
	defer f.Close()
	return Read(f)
}

// Read parses "seconds,mm" records. A non-numeric first row is taken as a header;
// bad rows after that are logged and skipped.
func Read(in io.Reader) (*Variable, error) {
	r := csv.NewReader(bufio.NewReader(in))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	v := NewVariable()
	for row := 0; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "rain: row %d", row)
		}
		if len(rec) < 2 {
			log.Warnf("rain: row %d has %d fields, skipping this one", row, len(rec))
			continue
		}

		sec, errs := strconv.ParseFloat(rec[0], 64)
		mm, errm := strconv.ParseFloat(rec[1], 64)
		if errs != nil || errm != nil {
			if row > 0 {
				log.Warnf("rain: row %d not numeric (%v), skipping this one", row, rec)
			}
			continue
		}
		v.Add(time.Duration(sec*float64(time.Second)), mm)
	}

	if v.Len() == 0 {
		return nil, errors.New("rain: no data points")
	}
	return v, nil
}
