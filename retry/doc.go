// Package retry implements a Retry/Repeat engine: given a
// schedule.Schedule and an asynchronous op, it invokes op, observes the
// outcome, and consults the schedule for the next (delay, continue?)
// decision. Retry schedules are driven by errors; repeat schedules by
// successful values.
//
// Go doesn't allow a method to introduce type parameters beyond its
// receiver's, so the per-call generic operations (Retry, Repeat,
// RepeatUntil, ...) are free functions taking a *Retrier as their first
// argument, rather than methods. The *Retrier still owns the Statistics and
// listener bus a method-based API would have, it's just addressed
// differently.
package retry
