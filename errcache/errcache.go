// Package errcache keeps a durable log of sensor link failures together with
// the controller traffic seen around them, for later inspection.
package errcache

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/westphae/gopond/sensors"
)

var (
	reportPrefix = []byte("r/")
	timePrefix   = []byte("t/")
)

// Report is one logged failure.
type Report struct {
	ID      uint64    `json:"id"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Lines   []string  `json:"lines,omitempty"`
}

// Cache is an append-only store of reports. Safe for concurrent use.
type Cache struct {
	db *badger.DB

	mu   sync.Mutex
	last uint64
}

// Open opens the cache in dir, creating it if needed. An empty dir keeps it in memory.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "errcache: open %q", dir)
	}

	c := &Cache{db: db}
	err = db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Reverse = true
		o.PrefetchValues = false
		it := txn.NewIterator(o)
		defer it.Close()
		it.Seek(append(append([]byte{}, reportPrefix...), 0xff))
		if it.ValidForPrefix(reportPrefix) {
			c.last = binary.BigEndian.Uint64(it.Item().Key()[len(reportPrefix):])
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "errcache: find last report")
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func reportKey(id uint64) []byte {
	k := make([]byte, len(reportPrefix)+8)
	copy(k, reportPrefix)
	binary.BigEndian.PutUint64(k[len(reportPrefix):], id)
	return k
}

func timeKey(t time.Time, id uint64) []byte {
	k := make([]byte, len(timePrefix)+16)
	copy(k, timePrefix)
	binary.BigEndian.PutUint64(k[len(timePrefix):], uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(k[len(timePrefix)+8:], id)
	return k
}

func timeSeek(t time.Time) []byte {
	return timeKey(t, 0)[:len(timePrefix)+8]
}

// Insert stores r under the next id and returns that id.
func (c *Cache) Insert(r Report) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r.ID = c.last + 1
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	val, err := json.Marshal(r)
	if err != nil {
		return 0, errors.Wrap(err, "errcache: encode")
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(reportKey(r.ID), val); err != nil {
			return err
		}
		return txn.Set(timeKey(r.Time, r.ID), nil)
	})
	if err != nil {
		return 0, errors.Wrap(err, "errcache: insert")
	}
	c.last = r.ID
	return r.ID, nil
}

// ReportLinkError logs a link failure seen at t.
func (c *Cache) ReportLinkError(t time.Time, le *sensors.LinkError) error {
	_, err := c.Insert(Report{
		Time:    t,
		Kind:    le.Kind.String(),
		Message: le.Error(),
		Lines:   le.Lines,
	})
	return err
}

func get(txn *badger.Txn, id uint64) (r Report, err error) {
	item, err := txn.Get(reportKey(id))
	if err != nil {
		return r, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	})
	return r, err
}

// Get returns the report with id; ok is false if there is none.
func (c *Cache) Get(id uint64) (r Report, ok bool, err error) {
	err = c.db.View(func(txn *badger.Txn) error {
		var errg error
		r, errg = get(txn, id)
		return errg
	})
	if err == badger.ErrKeyNotFound {
		return r, false, nil
	}
	if err != nil {
		return r, false, errors.Wrapf(err, "errcache: get %d", id)
	}
	return r, true, nil
}

// nearest finds the first report walking the time index from t.
// Walking backwards it only sees reports strictly before t.
func (c *Cache) nearest(t time.Time, reverse bool) (r Report, ok bool, err error) {
	err = c.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Reverse = reverse
		o.PrefetchValues = false
		it := txn.NewIterator(o)
		defer it.Close()

		it.Seek(timeSeek(t))
		if !it.ValidForPrefix(timePrefix) {
			return nil
		}
		id := binary.BigEndian.Uint64(it.Item().Key()[len(timePrefix)+8:])
		var errg error
		r, errg = get(txn, id)
		ok = errg == nil
		return errg
	})
	if err != nil {
		return r, false, errors.Wrap(err, "errcache: time index")
	}
	return
}

// NearestBefore returns the latest report strictly before t.
func (c *Cache) NearestBefore(t time.Time) (Report, bool, error) {
	return c.nearest(t, true)
}

// NearestAfter returns the earliest report at or after t.
func (c *Cache) NearestAfter(t time.Time) (Report, bool, error) {
	return c.nearest(t, false)
}

// Nearest returns the report closest in time to t, preferring the later one on a tie.
func (c *Cache) Nearest(t time.Time) (Report, bool, error) {
	before, okb, err := c.NearestBefore(t)
	if err != nil {
		return before, false, err
	}
	after, oka, err := c.NearestAfter(t)
	if err != nil {
		return after, false, err
	}
	switch {
	case okb && oka:
		if t.Sub(before.Time) < after.Time.Sub(t) {
			return before, true, nil
		}
		return after, true, nil
	case okb:
		return before, true, nil
	}
	return after, oka, nil
}

// All returns every report in id order.
func (c *Cache) All() ([]Report, error) {
	var rs []Report
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(reportPrefix); it.ValidForPrefix(reportPrefix); it.Next() {
			var r Report
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			rs = append(rs, r)
		}
		return nil
	})
	return rs, errors.Wrap(err, "errcache: list")
}
