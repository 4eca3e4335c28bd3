package lattice

import "fmt"

// BoolState is a two-point lattice: optimistically true, pessimistically
// false. Assumed only moves from true to false.
type BoolState struct {
	known   bool
	assumed bool
}

// NewBoolState creates a state that assumes true and knows nothing.
func NewBoolState() BoolState {
	return BoolState{assumed: true}
}

// Known returns the proven value.
func (s *BoolState) Known() bool { return s.known }

// Assumed returns the optimistic value.
func (s *BoolState) Assumed() bool { return s.assumed }

// MeetAssumed folds v into assumed: a false v makes the state false.
func (s *BoolState) MeetAssumed(v bool) {
	if !v {
		s.assumed = s.known
	}
}

// IsValid is always true: false is a legitimate answer.
func (s *BoolState) IsValid() bool { return true }

func (s *BoolState) IsAtFixpoint() bool { return s.known == s.assumed }

func (s *BoolState) IndicateOptimisticFixpoint() { s.known = s.assumed }

func (s *BoolState) IndicatePessimisticFixpoint() { s.assumed = s.known }

func (s *BoolState) String() string {
	return fmt.Sprintf("bool{known=%t assumed=%t}", s.known, s.assumed)
}
