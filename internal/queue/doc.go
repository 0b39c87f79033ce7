// Package queue persists pipeline jobs in SQLite and exposes the claim
// protocol workers coordinate through.
//
// The Store owns the jobs table: enqueue with exclusive-target checks, the
// single-statement ClaimNext, stale-claim reclaim, owner-guarded transitions,
// operator requeue/park, and read projections. Dependency gating (parent
// completion and group barriers) lives in one SQL predicate shared by the
// claim and IsEligible.
//
// Treat this package as the single source of truth for job semantics; when you
// add columns, update schema.sql in the database package and bump its version.
package queue
