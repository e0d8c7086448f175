// Package rlog is the logging seam shared by every primitive in this
// module. It exists because the primitives have no opinion on where their
// structured output ends up: callers may already run logiface, zerolog,
// slog, or nothing at all.
//
// The shape mirrors github.com/joeycumines/go-utilpkg/eventloop's own
// logging.go: a minimal Logger interface, a default implementation, and a
// package-level no-op fallback. Unlike eventloop, there is no global
// logger — every primitive takes its own Logger via its Config, since
// multiple independently-configured primitives may coexist in a process.
package rlog
