package batchtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_AdvanceFiresDueTimersInOrder(t *testing.T) {
	c := NewManualClock(time.UnixMilli(0))
	var fired []string
	c.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "late") })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "early") })
	stopped := c.AfterFunc(150*time.Millisecond, func() { fired = append(fired, "stopped") })

	assert.True(t, stopped.Stop())
	assert.Equal(t, 2, c.Pending())

	c.Advance(250 * time.Millisecond)

	assert.Equal(t, []string{"early", "late"}, fired)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, time.UnixMilli(250), c.Now())
	assert.False(t, stopped.Stop())
}
