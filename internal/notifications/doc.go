// Package notifications delivers operator alerts via ntfy.
//
// Only two situations alert: a job reaching quarantine and storage admission
// entering the paused band. Everything else is logged. The ntfy implementation
// posts to the configured topic and degrades to a no-op when no topic is set.
// Per-event toggles in [notifications] suppress either alert.
package notifications
