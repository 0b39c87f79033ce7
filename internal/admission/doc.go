// Package admission gates space-consuming job kinds on free storage.
//
// The Controller probes the storage volume, classifies usage into a band
// (normal, cleanup_active, paused), enqueues a single cleanup job while usage
// is high, and records the band in system_state so the paused alert fires
// once across every worker process. Watch re-probes during execution and
// cancels a job whose volume drops under the safety margin.
package admission
