// Package workflow runs the worker loop: one lane per job kind, each polling
// the store, claiming eligible jobs, executing them through a stage.Handler,
// and completing or failing them under the retry policy.
//
// Lanes are stateless between polls. Every coordination point (claims, stale
// reclaim, admission band, follow-up enqueue) goes through the shared SQLite
// store, so any number of worker processes can run the same lanes side by
// side.
package workflow
