package grouping

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// deletableSQL holds for a resource row r that nothing references and that
// is not the last copy of its grouping key.
const deletableSQL = `r.ref_count = 0 AND EXISTS (
    SELECT 1 FROM resources o WHERE o.grouping_key = r.grouping_key AND o.id <> r.id)`

// CanDelete reports whether the resource may be deleted right now.
func (m *Manager) CanDelete(ctx context.Context, id int64) (bool, error) {
	var deletable int
	err := m.db.QueryRow(ctx,
		`SELECT CASE WHEN `+deletableSQL+` THEN 1 ELSE 0 END FROM resources r WHERE r.id = ?`, id,
	).Scan(&deletable)
	if err != nil {
		if _, getErr := m.Resource(ctx, id); getErr != nil {
			return false, getErr
		}
		return false, fmt.Errorf("check deletable: %w", err)
	}
	return deletable == 1, nil
}

// Delete removes the resource row and then its file. The row delete is a
// single guarded statement, so two concurrent deletes of the last two copies
// cannot both succeed.
func (m *Manager) Delete(ctx context.Context, id int64) (*Resource, error) {
	res, err := m.Resource(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := m.db.Exec(ctx,
		`DELETE FROM resources WHERE id = ? AND ref_count = 0 AND EXISTS (
            SELECT 1 FROM resources o WHERE o.grouping_key = resources.grouping_key AND o.id <> resources.id)`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("delete resource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete resource: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: resource %d (%s)", ErrResourceInUse, id, res.Path)
	}
	if err := m.remove(res.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("remove %s: %w", res.Path, err)
	}
	return res, nil
}

// CleanupCandidates lists resources in deletion preference order: unreferenced
// first, then groupings with the most surviving copies, then lower access
// priority, then least recently used. The sole copy of a grouping key is never
// listed.
func (m *Manager) CleanupCandidates(ctx context.Context, limit int) ([]*Resource, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := m.db.Query(ctx,
		`SELECT `+resourceColumnsR+` FROM resources r
         WHERE EXISTS (SELECT 1 FROM resources o WHERE o.grouping_key = r.grouping_key AND o.id <> r.id)
         ORDER BY (r.ref_count = 0) DESC,
                  (SELECT COUNT(1) FROM resources c WHERE c.grouping_key = r.grouping_key) DESC,
                  r.access_priority ASC,
                  COALESCE(r.last_accessed_at, r.created_at) ASC,
                  r.id ASC
         LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("cleanup candidates: %w", err)
	}
	return scanResources(rows)
}
