// Package pipeline wires the WikiSeed job kinds into a dump cycle.
//
// Trigger seeds a cycle with a discover job and a barrier bundle job that
// waits for every fetch and archive job in the cycle's group. Hooks turns
// handler results into grouping state: fetched files become resources and
// bundle results link and seal their members.
package pipeline
