// Package diag collects structured diagnostics for one pass-manager run.
//
// A Sink is created per run and threaded through every pass explicitly.
// There is no process-wide state: two runs never share a sink.
package diag
