package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Well-known system_state keys.
const (
	StateAdmissionBand      = "admission.band"
	StateDiscoveryLastCycle = "discovery.last_cycle"
)

// State returns the value stored under key. The boolean is false when unset.
func (d *DB) State(ctx context.Context, key string) (string, bool, error) {
	ctx = ensureContext(ctx)
	var value string
	err := retryOnBusy(ctx, func() error {
		return d.sql.QueryRowContext(ctx, "SELECT value FROM system_state WHERE key = ?", key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read state %q: %w", key, err)
	}
	return value, true, nil
}

// StateTx reads key inside an existing transaction.
func StateTx(ctx context.Context, tx *sql.Tx, key string) (string, bool, error) {
	var value string
	err := tx.QueryRowContext(ctx, "SELECT value FROM system_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read state %q: %w", key, err)
	}
	return value, true, nil
}

// SetState stores value under key.
func (d *DB) SetState(ctx context.Context, key, value string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		return SetStateTx(ctx, tx, key, value)
	})
}

// SetStateTx stores value under key inside an existing transaction.
func SetStateTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("write state %q: %w", key, err)
	}
	return nil
}

// SwapState stores value under key and returns the previous value. changed is
// true only for the caller whose write altered the stored value, which makes
// it safe to gate one-shot side effects (alerts) across processes.
func (d *DB) SwapState(ctx context.Context, key, value string) (previous string, changed bool, err error) {
	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		previous, changed = "", false
		scanErr := tx.QueryRowContext(ctx, "SELECT value FROM system_state WHERE key = ?", key).Scan(&previous)
		if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
			return fmt.Errorf("read state %q: %w", key, scanErr)
		}
		if scanErr == nil && previous == value {
			return nil
		}
		if err := SetStateTx(ctx, tx, key, value); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return previous, changed, nil
}
