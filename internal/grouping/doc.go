// Package grouping tracks downloaded resources, the bundles that hard-link
// them, and the reference counts that decide when a file may be deleted.
//
// All reference counting goes through Link and Unlink, which insert or remove
// a membership edge and adjust the one affected resource row in the same
// transaction. Deletion is guarded in SQL so the last surviving copy of a
// grouping key, or anything still referenced, is never removed.
package grouping
