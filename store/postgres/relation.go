package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/privmsg/store"
)

// ReplaceIgnoreList replaces blockerID's ignore edges in one transaction.
// Edges that survive the replace keep their creation time.
func (s *Store) ReplaceIgnoreList(ctx context.Context, blockerID string, blockedIDs []string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if blockerID == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	keep := make([]string, 0, len(blockedIDs))
	seen := make(map[string]bool, len(blockedIDs))
	for _, id := range blockedIDs {
		if id == "" || id == blockerID || seen[id] {
			continue
		}
		seen[id] = true
		keep = append(keep, id)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	del := fmt.Sprintf(`DELETE FROM %s WHERE blocker_id = $1 AND NOT (blocked_id = ANY($2))`, s.opts.ignoreTable)
	if _, err := tx.ExecContext(ctx, del, blockerID, pq.Array(keep)); err != nil {
		return fmt.Errorf("delete ignore edges: %w", err)
	}

	ins := fmt.Sprintf(`
		INSERT INTO %s (blocker_id, blocked_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`, s.opts.ignoreTable)
	now := time.Now().UTC()
	for _, id := range keep {
		if _, err := tx.ExecContext(ctx, ins, blockerID, id, now); err != nil {
			return fmt.Errorf("insert ignore edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

type ignoreRow struct {
	BlockerID string    `db:"blocker_id"`
	BlockedID string    `db:"blocked_id"`
	CreatedAt time.Time `db:"created_at"`
}

// IgnoreList returns blockerID's ignore edges ordered by blocked user.
func (s *Store) IgnoreList(ctx context.Context, blockerID string) ([]store.IgnoreEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT blocker_id, blocked_id, created_at FROM %s WHERE blocker_id = $1 ORDER BY blocked_id`,
		s.opts.ignoreTable)
	var rows []ignoreRow
	if err := s.db.SelectContext(ctx, &rows, query, blockerID); err != nil {
		return nil, fmt.Errorf("query ignore list: %w", err)
	}

	entries := make([]store.IgnoreEntry, len(rows))
	for i, r := range rows {
		entries[i] = store.IgnoreEntry{BlockerID: r.BlockerID, BlockedID: r.BlockedID, CreatedAt: r.CreatedAt.UTC()}
	}
	return entries, nil
}

// IsIgnoredBy reports whether blockerID blocks blockedID.
func (s *Store) IsIgnoredBy(ctx context.Context, blockerID, blockedID string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE blocker_id = $1 AND blocked_id = $2)`, s.opts.ignoreTable)
	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, blockerID, blockedID); err != nil {
		return false, fmt.Errorf("check ignore: %w", err)
	}
	return exists, nil
}

// Blockers returns the users blocking blockedID.
func (s *Store) Blockers(ctx context.Context, blockedID string) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT blocker_id FROM %s WHERE blocked_id = $1 ORDER BY blocker_id`, s.opts.ignoreTable)
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, blockedID); err != nil {
		return nil, fmt.Errorf("query blockers: %w", err)
	}
	return ids, nil
}

// UpsertGrants creates or refreshes grant edges in one transaction.
func (s *Store) UpsertGrants(ctx context.Context, grants ...store.ContactGrant) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if len(grants) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := s.upsertGrants(ctx, tx, grants); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

// upsertGrants writes grant edges inside tx. Duplicates only refresh updated_at.
func (s *Store) upsertGrants(ctx context.Context, tx *sqlx.Tx, grants []store.ContactGrant) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (granter_id, grantee_id, created_at, updated_at) VALUES ($1, $2, $3, $3)
		ON CONFLICT (granter_id, grantee_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, s.opts.contactTable)
	now := time.Now().UTC()
	for _, g := range grants {
		if g.GranterID == "" || g.GranteeID == "" || g.GranterID == g.GranteeID {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, g.GranterID, g.GranteeID, now); err != nil {
			return fmt.Errorf("upsert grant: %w", err)
		}
	}
	return nil
}

// Grantees returns the users granterID allows to write.
func (s *Store) Grantees(ctx context.Context, granterID string) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT grantee_id FROM %s WHERE granter_id = $1 ORDER BY grantee_id`, s.opts.contactTable)
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, granterID); err != nil {
		return nil, fmt.Errorf("query grantees: %w", err)
	}
	return ids, nil
}
