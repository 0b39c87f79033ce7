package grouping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"wikiseed/internal/database"
)

// Remover deletes the physical file behind a resource.
type Remover func(path string) error

// Manager owns the resources, bundles, and bundle_members tables.
type Manager struct {
	db     *database.DB
	remove Remover
	now    func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRemover overrides how files are removed after a successful Delete.
func WithRemover(remove Remover) Option {
	return func(m *Manager) {
		if remove != nil {
			m.remove = remove
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New builds a Manager over db.
func New(db *database.DB, opts ...Option) *Manager {
	m := &Manager{db: db, remove: os.Remove, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) timestamp() string {
	return database.FormatTime(m.now())
}

// RegisterResource records a stored file, updating the existing row when the
// path is already known. Reference counts are never touched here.
func (m *Manager) RegisterResource(ctx context.Context, res NewResource) (*Resource, error) {
	res.Path = strings.TrimSpace(res.Path)
	res.GroupingKey = strings.TrimSpace(res.GroupingKey)
	if res.Path == "" || res.GroupingKey == "" {
		return nil, fmt.Errorf("%w: path and grouping key are required", ErrInvalidResource)
	}
	if res.SizeBytes < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrInvalidResource)
	}
	switch res.VerificationStatus {
	case "":
		res.VerificationStatus = VerificationUnverified
	case VerificationUnverified, VerificationVerified, VerificationMismatch:
	default:
		return nil, fmt.Errorf("%w: unknown verification status %q", ErrInvalidResource, res.VerificationStatus)
	}

	timestamp := m.timestamp()
	var id int64
	err := m.db.QueryRow(ctx,
		`INSERT INTO resources (
            grouping_key, path, size_bytes, md5, sha1, verification_status, access_priority, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(path) DO UPDATE SET
            grouping_key = excluded.grouping_key,
            size_bytes = excluded.size_bytes,
            md5 = COALESCE(excluded.md5, resources.md5),
            sha1 = COALESCE(excluded.sha1, resources.sha1),
            verification_status = excluded.verification_status,
            access_priority = excluded.access_priority,
            last_accessed_at = excluded.created_at
        RETURNING id`,
		res.GroupingKey,
		res.Path,
		res.SizeBytes,
		nullableString(res.MD5),
		nullableString(res.SHA1),
		res.VerificationStatus,
		res.AccessPriority,
		timestamp,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("register resource: %w", err)
	}
	return m.Resource(ctx, id)
}

// CreateBundle creates an open bundle or returns the existing one by name.
func (m *Manager) CreateBundle(ctx context.Context, name, classification string) (*Bundle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: bundle name is required", ErrInvalidResource)
	}
	if _, err := m.db.Exec(ctx,
		`INSERT INTO bundles (name, classification, build_status, created_at)
         VALUES (?, ?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		name, strings.TrimSpace(classification), BuildOpen, m.timestamp(),
	); err != nil {
		return nil, fmt.Errorf("create bundle: %w", err)
	}
	return m.BundleByName(ctx, name)
}

// Link adds resourceID to bundleID. It reports whether a new edge was
// created; linking an existing member is a no-op.
func (m *Manager) Link(ctx context.Context, resourceID, bundleID int64) (bool, error) {
	var added bool
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		added = false
		if err := requireOpenBundle(ctx, tx, bundleID); err != nil {
			return err
		}
		if err := requireResource(ctx, tx, resourceID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO bundle_members (bundle_id, resource_id, created_at) VALUES (?, ?, ?)`,
			bundleID, resourceID, m.timestamp(),
		)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE resources SET ref_count = ref_count + 1 WHERE id = ?`, resourceID,
		); err != nil {
			return fmt.Errorf("increment ref count: %w", err)
		}
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Unlink removes resourceID from bundleID. It reports whether an edge was
// removed; unlinking a non-member is a no-op.
func (m *Manager) Unlink(ctx context.Context, resourceID, bundleID int64) (bool, error) {
	var removed bool
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		removed = false
		if err := requireOpenBundle(ctx, tx, bundleID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM bundle_members WHERE bundle_id = ? AND resource_id = ?`, bundleID, resourceID,
		)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE resources SET ref_count = ref_count - 1 WHERE id = ?`, resourceID,
		); err != nil {
			return fmt.Errorf("decrement ref count: %w", err)
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// SealBundle marks a bundle built, freezing its membership. Sealing an
// already-built bundle with the same artifact path is a no-op.
func (m *Manager) SealBundle(ctx context.Context, bundleID int64, artifactPath string) error {
	artifactPath = strings.TrimSpace(artifactPath)
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		var (
			status   string
			existing sql.NullString
		)
		err := tx.QueryRowContext(ctx, `SELECT build_status, artifact_path FROM bundles WHERE id = ?`, bundleID).Scan(&status, &existing)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrBundleNotFound, bundleID)
		}
		if err != nil {
			return fmt.Errorf("load bundle: %w", err)
		}
		if BuildStatus(status) == BuildBuilt {
			if existing.String == artifactPath {
				return nil
			}
			return fmt.Errorf("%w: bundle %d already built as %q", ErrBundleSealed, bundleID, existing.String)
		}
		timestamp := m.timestamp()
		if _, err := tx.ExecContext(ctx,
			`UPDATE bundles SET build_status = ?, artifact_path = ?, built_at = ? WHERE id = ?`,
			BuildBuilt, nullableString(artifactPath), timestamp, bundleID,
		); err != nil {
			return fmt.Errorf("seal bundle: %w", err)
		}
		return nil
	})
}

func requireOpenBundle(ctx context.Context, tx *sql.Tx, bundleID int64) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT build_status FROM bundles WHERE id = ?`, bundleID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrBundleNotFound, bundleID)
	}
	if err != nil {
		return fmt.Errorf("load bundle: %w", err)
	}
	if BuildStatus(status) == BuildBuilt {
		return fmt.Errorf("%w: bundle %d", ErrBundleSealed, bundleID)
	}
	return nil
}

func requireResource(ctx context.Context, tx *sql.Tx, resourceID int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM resources WHERE id = ?`, resourceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrResourceNotFound, resourceID)
	}
	if err != nil {
		return fmt.Errorf("load resource: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return value
}
