// Package lattice provides the abstract states tracked by the attributor.
//
// Every state carries a known and an assumed component. Known is what has been
// proven; assumed is the optimistic hypothesis that may still be refuted.
// Updates only ever move assumed towards known. A state is at a fixpoint when
// the two coincide:
//
//   - IndicateOptimisticFixpoint promotes assumed to known
//   - IndicatePessimisticFixpoint reverts assumed to known
//
// The states are plain values with pointer-receiver mutators so attribute
// kinds can embed them directly.
package lattice

// State is the common view of every lattice element.
type State interface {
	// IsValid reports whether the state still describes a usable fact.
	IsValid() bool
	// IsAtFixpoint reports whether assumed equals known.
	IsAtFixpoint() bool
	// IndicateOptimisticFixpoint fixes the state at its assumed value.
	IndicateOptimisticFixpoint()
	// IndicatePessimisticFixpoint fixes the state at its known value.
	IndicatePessimisticFixpoint()
	String() string
}
