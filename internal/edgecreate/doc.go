// Package edgecreate implements the "drag from a connector to create an
// edge" gesture as an explicit state machine.
//
// # States
//
//	Idle ──Begin──▶ GestureStarting ──hints──▶ Creating ◀──▶ Resolving
//	  ▲                   │ no hints              │              │
//	  └───────────────────┘                       ├──Complete────┴──▶ Completed ──▶ Idle
//	                                              └──Cancel──────────▶ Canceled  ──▶ Idle
//
// GestureStarting asks the constraint model for the hints offered at the
// connector. An empty list is a configuration error: Begin returns
// ErrNoCreationHints and the machine stays Idle.
//
// While Creating, every pointer move resolves the hovered node's port
// candidates against the current hint. When a valid candidate exists the
// machine is Resolving and Complete may finalize over that node; otherwise
// the pointer is over invalid territory and only an empty-canvas release or
// a Cancel can end the gesture.
//
// # Graph mutations
//
// Nothing touches the graph store before Complete. Complete opens a single
// store transaction, creates ports, the optional synthesized node and the
// edge, and commits. Any store error rolls the whole transaction back, so a
// failed or canceled gesture is never observable in the store.
//
// The provisional edge shown during the gesture lives only in the machine.
// Its bends are kept in drag order and are reversed as a whole, exactly once,
// when a reversed hint is finalized.
package edgecreate
