// Command wikiseed operates the WikiSeed pipeline engine.
//
// Every command opens the shared SQLite store directly; there is no daemon.
// `wikiseed worker run` starts the per-kind worker lanes in the foreground,
// and any number of workers may run against the same database. The remaining
// commands seed cycles, inspect and repair the job queue, manage grouped
// resources and bundles, and report storage admission state.
package main
