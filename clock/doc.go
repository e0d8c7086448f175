// Package clock abstracts monotonic time and sleeping so every primitive
// in this module can be driven by a virtual clock in tests instead of
// real wall-clock waits.
//
// Rather than package-level time variables swapped directly in tests,
// this module exposes an explicit Clock interface, threaded through
// every primitive's Config, since many packages here share the same
// need for deterministic, controllable time.
package clock
