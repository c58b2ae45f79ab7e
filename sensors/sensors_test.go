package sensors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarianceAccumulatorConstant(t *testing.T) {
	acc := NewVarianceAccumulator(250, 0.9)
	var n, m, v float64
	for i := 0; i < 100; i++ {
		n, m, v = acc(250)
	}
	assert.InDelta(t, 250.0, m, 1e-9)
	assert.InDelta(t, 0.0, v, 1e-9)
	assert.InDelta(t, 10.0, n, 0.01)
}

func TestVarianceAccumulatorSpread(t *testing.T) {
	acc := NewVarianceAccumulator(0, 0.95)
	var m, v float64
	for i := 0; i < 2000; i++ {
		x := 1.0
		if i%2 == 0 {
			x = -1
		}
		_, m, v = acc(x)
	}
	assert.InDelta(t, 0.0, m, 0.1)
	assert.InDelta(t, 1.0, v, 0.1)
}

func TestAsLinkError(t *testing.T) {
	le := NewLinkError(ZeroReading, "distance %d", 0)
	wrapped := fmt.Errorf("tick 3: %w", le)
	assert.Equal(t, le, AsLinkError(wrapped))
	assert.Contains(t, le.Error(), "zero reading")

	assert.Equal(t, Timeout, AsLinkError(context.DeadlineExceeded).Kind)
	assert.Equal(t, Unknown, AsLinkError(errors.New("boom")).Kind)
	assert.NotEmpty(t, OutOfSpec.Advice())
}
