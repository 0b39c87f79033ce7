// Package retry decides what happens to a job after a failed attempt.
//
// Policy is the only place retry decisions are made: it classifies the error,
// applies the per-kind backoff schedule, and enforces the attempt ceiling,
// producing the queue.Transition the worker persists.
package retry
