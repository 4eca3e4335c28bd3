package engine

// Clock stamps trace events with a logical time: a seq that increases by
// one per update across the whole run, and the work-list round the update
// ran in. Updates made while seeding carry round 0.
//
// The attributor runs on one goroutine, so Clock is not safe for
// concurrent use.
type Clock struct {
	seq   int64
	round int
}

// NewClock creates a clock whose first seq is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose first seq is start+1. Used to give
// several runs disjoint seq ranges.
func NewClockAt(start int64) *Clock {
	return &Clock{seq: start}
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq
}

// StartRound records that work-list round r has begun. Rounds never go
// backwards.
func (c *Clock) StartRound(r int) {
	if r > c.round {
		c.round = r
	}
}

// Round returns the current work-list round.
func (c *Clock) Round() int {
	return c.round
}
