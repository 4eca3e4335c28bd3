package lattice

import "fmt"

// Interval is an inclusive range [Lo, Hi] of uint32. Lo > Hi is empty.
type Interval struct {
	Lo, Hi uint32
}

// EmptyInterval is the canonical empty interval.
var EmptyInterval = Interval{Lo: 1, Hi: 0}

// NewInterval returns [lo, hi].
func NewInterval(lo, hi uint32) Interval {
	return Interval{Lo: lo, Hi: hi}
}

// Empty reports whether ival holds no values.
func (ival Interval) Empty() bool {
	return ival.Lo > ival.Hi
}

// Intersect returns the values in both intervals.
func (ival Interval) Intersect(oval Interval) Interval {
	if ival.Empty() || oval.Empty() {
		return EmptyInterval
	}
	out := Interval{Lo: max(ival.Lo, oval.Lo), Hi: min(ival.Hi, oval.Hi)}
	if out.Empty() {
		return EmptyInterval
	}
	return out
}

// Contains reports whether oval lies within ival. The empty interval is
// contained in everything.
func (ival Interval) Contains(oval Interval) bool {
	if oval.Empty() {
		return true
	}
	if ival.Empty() {
		return false
	}
	return ival.Lo <= oval.Lo && oval.Hi <= ival.Hi
}

// Equal reports whether both intervals hold the same values.
func (ival Interval) Equal(oval Interval) bool {
	if ival.Empty() {
		return oval.Empty()
	}
	return ival == oval
}

func (ival Interval) String() string {
	if ival.Empty() {
		return "∅"
	}
	return fmt.Sprintf("[%d, %d]", ival.Lo, ival.Hi)
}

// IntervalState narrows an interval by intersection. Known is the initial
// bound, which is also the pessimistic answer; assumed starts there and only
// shrinks. Because the two coincide at the start, the fixpoint is tracked
// explicitly rather than derived from known == assumed. Once assumed becomes
// empty the state is a terminal bottom: it is fixed and stays empty.
type IntervalState struct {
	known   Interval
	assumed Interval
	fixed   bool
}

// NewIntervalState starts both known and assumed at bound.
func NewIntervalState(bound Interval) IntervalState {
	return IntervalState{known: bound, assumed: bound}
}

// Known returns the initial bound.
func (s *IntervalState) Known() Interval { return s.known }

// Assumed returns the current narrowed interval.
func (s *IntervalState) Assumed() Interval { return s.assumed }

// IsEmpty reports whether the state reached the empty bottom.
func (s *IntervalState) IsEmpty() bool { return s.assumed.Empty() }

// IntersectAssumed narrows assumed to its intersection with o. A fixed state
// does not change.
func (s *IntervalState) IntersectAssumed(o Interval) {
	if s.fixed {
		return
	}
	s.assumed = s.assumed.Intersect(o)
	if s.assumed.Empty() {
		s.known = EmptyInterval
		s.fixed = true
	}
}

// IsValid is true; an empty interval is a legitimate, if unusable, result.
func (s *IntervalState) IsValid() bool { return true }

func (s *IntervalState) IsAtFixpoint() bool { return s.fixed }

func (s *IntervalState) IndicateOptimisticFixpoint() {
	s.known = s.assumed
	s.fixed = true
}

func (s *IntervalState) IndicatePessimisticFixpoint() {
	s.assumed = s.known
	s.fixed = true
}

func (s *IntervalState) String() string {
	return fmt.Sprintf("range{known=%s assumed=%s}", s.known, s.assumed)
}
