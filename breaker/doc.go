// Package breaker implements a circuit breaker state machine:
// Closed/Open/HalfOpen, with transactional admission (state read and
// transition happen atomically; the guarded op runs outside the
// transaction, and listeners are notified only after it commits).
package breaker
