package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/lattice"
)

// Kind names an attribute kind, e.g. "implicit-args".
type Kind string

// ChangeStatus reports whether an update or manifest changed anything.
type ChangeStatus bool

const (
	Unchanged ChangeStatus = false
	Changed   ChangeStatus = true
)

// Or combines two statuses.
func (c ChangeStatus) Or(o ChangeStatus) ChangeStatus {
	return c || o
}

func (c ChangeStatus) String() string {
	if c {
		return "changed"
	}
	return "unchanged"
}

// AbstractAttribute is one lattice element attached to a position.
//
// Initialize runs once, when the attribute is created. Update is the transfer
// function; it may query other attributes through the Attributor but must
// only mutate its own state. Manifest writes the final state back onto the
// program.
type AbstractAttribute interface {
	Kind() Kind
	Position() Position
	State() lattice.State
	Initialize(a *Attributor)
	Update(a *Attributor) ChangeStatus
	Manifest(a *Attributor) ChangeStatus
	// String renders the current state for traces and reports.
	String() string
}

// Factory creates an attribute of one kind at pos. It returns an
// InvariantError panic for positions the kind does not support.
type Factory func(pos Position) AbstractAttribute

type key struct {
	kind Kind
	pos  Position
}

// entry is one arena slot.
type entry struct {
	aa AbstractAttribute
	// dependents are the entries that queried this one, in first-query order.
	dependents []*entry
	depSet     map[*entry]bool
}

func (e *entry) addDependent(d *entry) {
	if e.depSet == nil {
		e.depSet = map[*entry]bool{}
	}
	if e.depSet[d] {
		return
	}
	e.depSet[d] = true
	e.dependents = append(e.dependents, d)
}

// Attributor is the fixpoint driver.
//
// Single-threaded: one Attributor serves one run over one module. All
// attributes live in its arena and are discarded with it.
type Attributor struct {
	module    *ir.Module
	factories map[Kind]Factory
	arena     map[key]*entry
	order     []*entry
	worklist  *worklist
	clock     *Clock
	logger    *slog.Logger

	maxIterations int
	// current is the attribute whose Update is running, nil during seeding.
	current *entry
	trace   []TraceEvent
	tracing bool
}

// Option configures an Attributor.
type Option func(*Attributor)

// WithMaxIterations sets the round budget.
//
// Default: 32 rounds (DefaultMaxIterations)
// Use WithMaxIterations(1) to exercise budget exhaustion in tests.
func WithMaxIterations(n int) Option {
	return func(a *Attributor) {
		a.maxIterations = n
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Attributor) {
		a.logger = l
	}
}

// WithClock sets the logical clock used to stamp trace events.
func WithClock(c *Clock) Option {
	return func(a *Attributor) {
		a.clock = c
	}
}

// WithTrace enables recording of every update in the run result.
func WithTrace(enabled bool) Option {
	return func(a *Attributor) {
		a.tracing = enabled
	}
}

// New creates an attributor over m.
func New(m *ir.Module, opts ...Option) *Attributor {
	a := &Attributor{
		module:        m,
		factories:     make(map[Kind]Factory),
		arena:         make(map[key]*entry),
		worklist:      newWorklist(),
		clock:         NewClock(),
		logger:        slog.Default(),
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Module returns the module under analysis.
func (a *Attributor) Module() *ir.Module {
	return a.module
}

// Logger returns the run's logger.
func (a *Attributor) Logger() *slog.Logger {
	return a.logger
}

// Register adds kind to the allow-list with its factory.
func (a *Attributor) Register(kind Kind, f Factory) {
	a.factories[kind] = f
}

// Allowed reports whether kind is registered.
func (a *Attributor) Allowed(kind Kind) bool {
	_, ok := a.factories[kind]
	return ok
}

// GetOrCreate returns the attribute of kind at pos, creating and initializing
// it on first use. No dependency is recorded.
func (a *Attributor) GetOrCreate(kind Kind, pos Position) AbstractAttribute {
	return a.lookup(kind, pos).aa
}

// GetAAFor returns the attribute of kind at pos on behalf of the attribute
// whose Update is running, recording that it depends on the result.
//
// A newly created attribute is initialized but not updated; it is scheduled
// for the next round. Its current (initial) state is what the caller sees.
func (a *Attributor) GetAAFor(kind Kind, pos Position) AbstractAttribute {
	e := a.lookup(kind, pos)
	if a.current != nil && a.current != e {
		e.addDependent(a.current)
	}
	return e.aa
}

// Lookup returns an existing attribute without creating one.
func (a *Attributor) Lookup(kind Kind, pos Position) (AbstractAttribute, bool) {
	e, ok := a.arena[key{kind, pos}]
	if !ok {
		return nil, false
	}
	return e.aa, true
}

func (a *Attributor) lookup(kind Kind, pos Position) *entry {
	k := key{kind, pos}
	if e, ok := a.arena[k]; ok {
		return e
	}
	f, ok := a.factories[kind]
	if !ok {
		panic(&InvariantError{
			Code:     ErrCodeUnknownKind,
			Kind:     kind,
			Function: pos.FunctionName(),
			Message:  "attribute kind is not in the allow-list",
		})
	}

	aa := f(pos)
	e := &entry{aa: aa}
	a.arena[k] = e
	a.order = append(a.order, e)

	// Initialize runs with no querying context: dependencies are recorded
	// only from Update.
	saved := a.current
	a.current = nil
	aa.Initialize(a)
	a.current = saved

	a.logger.Debug("attribute created",
		"kind", kind,
		"position", pos.String(),
		"state", aa.String(),
		"fixed", aa.State().IsAtFixpoint(),
	)

	if !aa.State().IsAtFixpoint() {
		a.worklist.Push(e)
	}
	return e
}

// Attributes returns every attribute in creation order.
func (a *Attributor) Attributes() []AbstractAttribute {
	out := make([]AbstractAttribute, len(a.order))
	for i, e := range a.order {
		out[i] = e.aa
	}
	return out
}

// CheckForAllCallSites calls pred with every direct call site of fn and
// reports whether all of them were visited and accepted. It returns false
// without calling pred when the caller set is not enumerable: fn is visible
// outside the module or its address is taken.
func (a *Attributor) CheckForAllCallSites(fn *ir.Function, pred func(call *ir.Call) bool) bool {
	if !fn.AllCallSitesKnown() {
		return false
	}
	for _, cs := range fn.CallSites() {
		if !pred(cs) {
			return false
		}
	}
	return true
}

// Result summarizes a run.
type Result struct {
	// Changed reports whether the manifest phase modified any function.
	Changed bool
	// Rounds is the number of work-list rounds executed.
	Rounds int
	// Updates is the number of Update calls.
	Updates int
	// Exhausted is set when the iteration budget ran out.
	Exhausted bool
	// Attributes is the size of the arena.
	Attributes int
	// Trace records every update when tracing is enabled.
	Trace []TraceEvent
}

// TraceEvent records one Update call.
type TraceEvent struct {
	Seq      int64
	Round    int
	Kind     Kind
	Function string
	Position string
	Before   string
	After    string
	Changed  bool
}

// Run iterates to a fixpoint and manifests the results.
func (a *Attributor) Run() Result {
	a.logger.Info("attributor starting",
		"module", a.module.Name,
		"attributes", len(a.order),
		"max_iterations", a.maxIterations,
	)

	res := Result{}
	budget := NewIterationBudget(a.maxIterations)

	for a.worklist.Len() > 0 {
		if err := budget.Check(); err != nil {
			be := err.(*BudgetExhaustedError)
			be.Pending = a.worklist.Len()
			a.logger.Warn("attributor did not converge",
				"error", err,
				"rounds", be.Rounds,
				"pending", be.Pending,
			)
			a.settlePessimistically(a.worklist.Drain())
			res.Exhausted = true
			break
		}
		a.clock.StartRound(budget.Current())

		for _, e := range a.worklist.Drain() {
			if e.aa.State().IsAtFixpoint() {
				continue
			}
			res.Updates++
			if a.update(e) {
				if !e.aa.State().IsAtFixpoint() {
					a.worklist.Push(e)
				}
				for _, d := range e.dependents {
					if !d.aa.State().IsAtFixpoint() {
						a.worklist.Push(d)
					}
				}
			}
		}
	}
	res.Rounds = budget.Current()

	for _, e := range a.order {
		if !e.aa.State().IsAtFixpoint() {
			e.aa.State().IndicateOptimisticFixpoint()
		}
	}

	for _, e := range a.order {
		if !e.aa.State().IsValid() {
			continue
		}
		if e.aa.Manifest(a) == Changed {
			res.Changed = true
			a.logger.Debug("attribute manifested",
				"kind", e.aa.Kind(),
				"position", e.aa.Position().String(),
				"state", e.aa.String(),
			)
		}
	}

	res.Attributes = len(a.order)
	res.Trace = a.trace

	a.logger.Info("attributor finished",
		"module", a.module.Name,
		"rounds", res.Rounds,
		"updates", res.Updates,
		"attributes", res.Attributes,
		"changed", res.Changed,
		"exhausted", res.Exhausted,
	)
	return res
}

// update runs one transfer function and reports whether its state changed.
func (a *Attributor) update(e *entry) bool {
	before := e.aa.String()
	wasFixed := e.aa.State().IsAtFixpoint()

	saved := a.current
	a.current = e
	cs := e.aa.Update(a)
	a.current = saved

	after := e.aa.String()
	changed := cs == Changed || e.aa.State().IsAtFixpoint() != wasFixed
	seq, round := a.clock.Next(), a.clock.Round()

	a.logger.Debug("attribute updated",
		"seq", seq,
		"round", round,
		"kind", e.aa.Kind(),
		"position", e.aa.Position().String(),
		"before", before,
		"after", after,
		"changed", changed,
	)

	if a.tracing {
		a.trace = append(a.trace, TraceEvent{
			Seq:      seq,
			Round:    round,
			Kind:     e.aa.Kind(),
			Function: e.aa.Position().FunctionName(),
			Position: e.aa.Position().String(),
			Before:   before,
			After:    after,
			Changed:  changed,
		})
	}
	return changed
}

// settlePessimistically fixes pending and, transitively, everything that
// depends on them at their pessimistic fixpoint.
func (a *Attributor) settlePessimistically(pending []*entry) {
	seen := make(map[*entry]bool, len(pending))
	stack := append([]*entry(nil), pending...)
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[e] {
			continue
		}
		seen[e] = true
		e.aa.State().IndicatePessimisticFixpoint()
		a.logger.Debug("attribute settled pessimistically",
			"kind", e.aa.Kind(),
			"position", e.aa.Position().String(),
			"state", e.aa.String(),
		)
		stack = append(stack, e.dependents...)
	}
}

// BadPosition panics with an InvariantError for kinds constructed at an
// unsupported position.
func BadPosition(kind Kind, pos Position) {
	panic(&InvariantError{
		Code:     ErrCodeBadPosition,
		Kind:     kind,
		Function: pos.FunctionName(),
		Message:  fmt.Sprintf("kind is not valid at %s position", pos.Kind),
	})
}
