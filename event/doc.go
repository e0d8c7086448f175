// Package event implements the listener bus shared by every primitive:
// an append-only, identity-addressed collection of callbacks, dispatched
// from a consistent snapshot taken outside the primitive's own critical
// section, so a listener can never observe or block the primitive's
// internal locking.
//
// A panicking listener is isolated and logged; it never affects other
// listeners or the primitive's own state.
package event
