package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTripSwitchLocalOnly(t *testing.T) {
	ts := NewTripSwitch(New(), nil)
	ctx := context.Background()

	assert.False(t, ts.Actuated(ctx))

	ts.Trip(ctx)
	assert.True(t, ts.Actuated(ctx))

	// Tripping again is a no-op, not an error.
	ts.Trip(ctx)
	assert.True(t, ts.Actuated(ctx))

	ts.Reset(ctx)
	assert.False(t, ts.Actuated(ctx))
}
