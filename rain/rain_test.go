package rain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConst(t *testing.T) {
	c := Const(12.5)
	assert.Equal(t, 12.5, c.Rainfall(0, time.Second))
	assert.Equal(t, 12.5, c.Rainfall(time.Hour, 2*time.Hour))
}

func TestVariableEmpty(t *testing.T) {
	assert.Equal(t, 0.0, NewVariable().Rainfall(0, time.Minute))
}

func TestVariableRainfall(t *testing.T) {
	s := time.Second
	v := NewVariable().
		Add(10*s, 4).
		Add(0, 2).
		Add(20*s, 0)

	tests := []struct {
		start, end time.Duration
		want       float64
	}{
		{0, 10 * s, 2},
		{10 * s, 20 * s, 4},
		{5 * s, 15 * s, 3},
		{0, 20 * s, 3},
		{15 * s, 25 * s, 2},
		{30 * s, 40 * s, 0},
		{12 * s, 12 * s, 4},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, v.Rainfall(tt.start, tt.end), 1e-12, "[%s,%s)", tt.start, tt.end)
	}
}

func TestVariableBeforeFirstPoint(t *testing.T) {
	v := NewVariable().Add(10*time.Second, 6)
	assert.InDelta(t, 3.0, v.Rainfall(0, 20*time.Second), 1e-12)
	assert.Equal(t, 0.0, v.Rainfall(0, 5*time.Second))
}

func TestRead(t *testing.T) {
	in := "sec,mm\n0,1.5\n30,oops\n60,3\n"
	v, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, v.Len())
	assert.InDelta(t, 1.5, v.Rainfall(0, time.Minute), 1e-12)
	assert.InDelta(t, 3.0, v.Rainfall(time.Minute, 2*time.Minute), 1e-12)

	_, err = Read(strings.NewReader("sec,mm\n"))
	assert.Error(t, err)
}
