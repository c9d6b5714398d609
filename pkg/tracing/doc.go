// Package tracing brackets units of work with registry calls.
//
// Run registers a process for a Request, runs the work, and finishes the process with
// FINISHED or FAILED depending on the outcome. Step does the same for a step nested
// under whatever process and step the context already carries. Handler mirrors slog
// records emitted with such a context into the process log, so ordinary logging calls
// show up in the live trace.
package tracing
