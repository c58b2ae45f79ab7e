package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockAdvance(t *testing.T) {
	c, err := New(10 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), c.Elapsed())
	for i := 1; i <= 3; i++ {
		c.Advance()
		assert.Equal(t, time.Duration(i)*10*time.Second, c.Elapsed())
		assert.Equal(t, time.Duration(i-1)*10*time.Second, c.TickStart())
	}
	assert.Equal(t, 10, c.WholeSeconds())
	assert.InDelta(t, 10.0, c.TickSeconds(), 1e-12)
}

func TestClockRejectsShortTick(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second, 500 * time.Millisecond} {
		_, err := New(d)
		assert.Error(t, err, d.String())
	}
}
