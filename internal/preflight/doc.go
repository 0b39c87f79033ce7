// Package preflight provides readiness checks for the filesystem paths,
// stage binaries and notification endpoint a worker depends on.
//
// The worker runs RunAll once at startup and refuses to start when a
// required directory is unusable. The CLI "wikiseed doctor" command
// renders the same results for operators.
package preflight
