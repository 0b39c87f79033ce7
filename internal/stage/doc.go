// Package stage defines the execution body contract the worker loop drives
// and the command handler that runs a configured external program per job.
package stage
