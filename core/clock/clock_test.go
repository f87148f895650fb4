package clock_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/trustboard/core/clock"
)

func TestFakeClock(t *testing.T) {
	c := qt.New(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	clk := clock.Fake(start)
	c.Assert(clk.Now(), qt.Equals, start)

	clk.Advance(90 * time.Second)
	c.Assert(clk.Now(), qt.Equals, start.Add(90*time.Second))
}

func TestRealClock(t *testing.T) {
	c := qt.New(t)
	before := time.Now()
	now := clock.Real().Now()
	c.Assert(now.Before(before), qt.IsFalse)
}
