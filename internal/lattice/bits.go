package lattice

import "fmt"

// BitState is a bit-integer lattice over a fixed mask. The best state has
// every bit of the mask assumed; the worst has none. Known is always a subset
// of assumed.
type BitState struct {
	best    uint32
	known   uint32
	assumed uint32
}

// NewBitState creates a state over best with every bit assumed and none known.
func NewBitState(best uint32) BitState {
	return BitState{best: best, assumed: best}
}

// Known returns the proven bits.
func (s *BitState) Known() uint32 { return s.known }

// Assumed returns the optimistically assumed bits.
func (s *BitState) Assumed() uint32 { return s.assumed }

// Best returns the mask of all bits.
func (s *BitState) Best() uint32 { return s.best }

// IsKnown reports whether every bit of m is known.
func (s *BitState) IsKnown(m uint32) bool { return s.known&m == m }

// IsAssumed reports whether every bit of m is assumed.
func (s *BitState) IsAssumed(m uint32) bool { return s.assumed&m == m }

// AddKnownBits proves the bits of m. Known bits are also assumed.
func (s *BitState) AddKnownBits(m uint32) {
	m &= s.best
	s.known |= m
	s.assumed |= m
}

// RemoveAssumedBits drops the bits of m from assumed. Known bits are never
// removed.
func (s *BitState) RemoveAssumedBits(m uint32) {
	s.assumed = (s.assumed &^ m) | s.known
}

// IntersectAssumedBits keeps only the assumed bits also in m, plus known bits.
func (s *BitState) IntersectAssumedBits(m uint32) {
	s.assumed = (s.assumed & m) | s.known
}

// MeetAND combines s with o bitwise: a bit survives, in both known and
// assumed, only if both states carry it.
func (s *BitState) MeetAND(o *BitState) {
	s.known &= o.known
	s.assumed &= o.assumed
}

func (s *BitState) IsValid() bool { return true }

func (s *BitState) IsAtFixpoint() bool { return s.known == s.assumed }

func (s *BitState) IndicateOptimisticFixpoint() { s.known = s.assumed }

func (s *BitState) IndicatePessimisticFixpoint() { s.assumed = s.known }

func (s *BitState) String() string {
	return fmt.Sprintf("bits{known=%#x assumed=%#x}", s.known, s.assumed)
}
