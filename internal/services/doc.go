// Package services defines shared utilities consumed by the job executors,
// the queue, and the worker loop.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, kinds, worker IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify, which maps
//     a failure onto the transient/fatal split the retry policy consumes.
//
// Use these helpers when wiring new executors so error handling and
// observability stay uniform across job kinds.
package services
