package errcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/westphae/gopond/sensors"
)

func openTestCache(t *testing.T) *Cache {
	c, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInsertGet(t *testing.T) {
	c := openTestCache(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	id, err := c.Insert(Report{Time: t0, Kind: "timeout", Message: "no response", Lines: []string{"Rvd:4"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	id, err = c.Insert(Report{Time: t0.Add(time.Minute), Kind: "zero reading"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)

	r, ok, err := c.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "timeout", r.Kind)
	assert.Equal(t, []string{"Rvd:4"}, r.Lines)
	assert.True(t, t0.Equal(r.Time))

	_, ok, err = c.Get(7)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := c.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(2), all[1].ID)
}

func TestNearest(t *testing.T) {
	c := openTestCache(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, m := range []int{0, 10, 30} {
		_, err := c.Insert(Report{Time: t0.Add(time.Duration(m) * time.Minute), Kind: "timeout"})
		require.NoError(t, err)
	}

	r, ok, err := c.NearestBefore(t0.Add(10 * time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), r.ID)

	r, ok, err = c.NearestAfter(t0.Add(10 * time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), r.ID)

	_, ok, err = c.NearestBefore(t0)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.NearestAfter(t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	r, _, _ = c.Nearest(t0.Add(12 * time.Minute))
	assert.Equal(t, uint64(2), r.ID)
	r, _, _ = c.Nearest(t0.Add(25 * time.Minute))
	assert.Equal(t, uint64(3), r.ID)
	r, _, _ = c.Nearest(t0.Add(20 * time.Minute))
	assert.Equal(t, uint64(3), r.ID)
	r, _, _ = c.Nearest(t0.Add(2 * time.Hour))
	assert.Equal(t, uint64(3), r.ID)
}

func TestReportLinkError(t *testing.T) {
	c := openTestCache(t)
	le := sensors.NewLinkError(sensors.OutOfSpec, "distance 12 outside [30, 9998]")
	le.Lines = []string{"Rvd:12", "invariance:1"}
	require.NoError(t, c.ReportLinkError(time.Now(), le))

	all, err := c.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "reading out of spec", all[0].Kind)
	assert.Equal(t, le.Lines, all[0].Lines)
}

func TestReopenContinuesIDs(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	_, err = c.Insert(Report{Kind: "timeout"})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(dir)
	require.NoError(t, err)
	defer c.Close()
	id, err := c.Insert(Report{Kind: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}
