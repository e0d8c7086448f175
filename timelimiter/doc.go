// Package timelimiter races a guarded operation against a deadline,
// cancelling the op cooperatively via context when the timer wins.
package timelimiter
