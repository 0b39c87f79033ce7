// Package cleanup implements the built-in execution body for cleanup jobs.
//
// A cleanup run holds a host-wide file lock, walks grouping cleanup
// candidates in preference order, and deletes copies until storage usage is
// back under the cleanup trigger. The golden-copy guard lives in
// grouping.Delete; this package only decides when to stop.
package cleanup
