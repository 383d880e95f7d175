// Package kram wraps the kram texture encoder CLI.
//
// The Client turns a dispatch.Format into kram's encode arguments, runs the
// binary through an Executor, and reports non-zero exits as ExitError values
// carrying the captured stderr. Tests inject an Executor via WithExecutor so
// no real encoder is needed.
package kram
