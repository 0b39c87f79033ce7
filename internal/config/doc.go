// Package config loads, normalizes, and validates WikiSeed configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// WIKISEED_NTFY_TOPIC. The Config type centralizes every knob the workers and
// CLI need: store location, per-kind worker policy (poll cadence, expected
// runtime, retry schedule, execution command), storage admission thresholds,
// discovery cycle days, alerting, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, merged per-kind policies, and clear validation errors.
package config
