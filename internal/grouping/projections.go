package grouping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wikiseed/internal/database"
)

const resourceColumns = "id, grouping_key, path, size_bytes, md5, sha1, verification_status, ref_count, access_priority, created_at, last_accessed_at"

const resourceColumnsR = "r.id, r.grouping_key, r.path, r.size_bytes, r.md5, r.sha1, r.verification_status, r.ref_count, r.access_priority, r.created_at, r.last_accessed_at"

const bundleColumns = "b.id, b.name, b.classification, b.build_status, b.artifact_path, b.created_at, b.built_at, (SELECT COUNT(1) FROM bundle_members m WHERE m.bundle_id = b.id)"

// Resource returns one resource by id.
func (m *Manager) Resource(ctx context.Context, id int64) (*Resource, error) {
	res, err := scanResource(m.db.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return res, nil
}

// Resources lists resources matching filter ordered by grouping key and id.
func (m *Manager) Resources(ctx context.Context, filter Filter) ([]*Resource, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.GroupingKey != "" {
		clauses = append(clauses, "grouping_key = ?")
		args = append(args, filter.GroupingKey)
	}
	if filter.Unreferenced {
		clauses = append(clauses, "ref_count = 0")
	}
	query := `SELECT ` + resourceColumns + ` FROM resources`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY grouping_key, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := m.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return scanResources(rows)
}

// Bundle returns one bundle by id.
func (m *Manager) Bundle(ctx context.Context, id int64) (*Bundle, error) {
	bundle, err := scanBundle(m.db.QueryRow(ctx, `SELECT `+bundleColumns+` FROM bundles b WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrBundleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	return bundle, nil
}

// BundleByName returns one bundle by its unique name.
func (m *Manager) BundleByName(ctx context.Context, name string) (*Bundle, error) {
	bundle, err := scanBundle(m.db.QueryRow(ctx, `SELECT `+bundleColumns+` FROM bundles b WHERE b.name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrBundleNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	return bundle, nil
}

// Bundles lists all bundles, newest first.
func (m *Manager) Bundles(ctx context.Context) ([]*Bundle, error) {
	rows, err := m.db.Query(ctx, `SELECT `+bundleColumns+` FROM bundles b ORDER BY b.created_at DESC, b.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()
	var bundles []*Bundle
	for rows.Next() {
		bundle, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, bundle)
	}
	return bundles, rows.Err()
}

// Members lists the resources linked into a bundle.
func (m *Manager) Members(ctx context.Context, bundleID int64) ([]*Resource, error) {
	rows, err := m.db.Query(ctx,
		`SELECT `+resourceColumnsR+` FROM resources r
         JOIN bundle_members bm ON bm.resource_id = r.id
         WHERE bm.bundle_id = ? ORDER BY r.grouping_key, r.id`,
		bundleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return scanResources(rows)
}

func scanResource(scanner interface{ Scan(dest ...any) error }) (*Resource, error) {
	var (
		res          Resource
		md5          sql.NullString
		sha1         sql.NullString
		verification string
		createdRaw   string
		accessedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&res.ID,
		&res.GroupingKey,
		&res.Path,
		&res.SizeBytes,
		&md5,
		&sha1,
		&verification,
		&res.RefCount,
		&res.AccessPriority,
		&createdRaw,
		&accessedRaw,
	); err != nil {
		return nil, err
	}
	res.MD5 = md5.String
	res.SHA1 = sha1.String
	res.VerificationStatus = Verification(verification)
	if created, err := database.ParseTime(createdRaw); err == nil {
		res.CreatedAt = created
	}
	if accessedRaw.Valid {
		if accessed, err := database.ParseTime(accessedRaw.String); err == nil {
			res.LastAccessedAt = &accessed
		}
	}
	return &res, nil
}

func scanResources(rows *sql.Rows) ([]*Resource, error) {
	defer rows.Close()
	var out []*Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanBundle(scanner interface{ Scan(dest ...any) error }) (*Bundle, error) {
	var (
		bundle     Bundle
		status     string
		artifact   sql.NullString
		createdRaw string
		builtRaw   sql.NullString
	)
	if err := scanner.Scan(
		&bundle.ID,
		&bundle.Name,
		&bundle.Classification,
		&status,
		&artifact,
		&createdRaw,
		&builtRaw,
		&bundle.MemberCount,
	); err != nil {
		return nil, err
	}
	bundle.BuildStatus = BuildStatus(status)
	bundle.ArtifactPath = artifact.String
	if created, err := database.ParseTime(createdRaw); err == nil {
		bundle.CreatedAt = created
	}
	if builtRaw.Valid {
		if built, err := database.ParseTime(builtRaw.String); err == nil {
			bundle.BuiltAt = &built
		}
	}
	return &bundle, nil
}
