// Package schedule implements Schedule[E], a composable retry/repeat
// policy: a lazy decision function producing (delay, continue?) pairs,
// driven either by errors (retry) or by successful values (repeat),
// composable via And.
//
// The package is small and flat, favors value types over pointers where
// possible, exposes constructor functions returning an interface, and
// avoids hidden global state so a Schedule's behavior can be driven
// deterministically by a virtual clock in tests.
package schedule
