// ABOUTME: Privilege grant and group membership store methods
// ABOUTME: Grant mutations are idempotent; reads never mutate state

package store

import (
	"context"
	"fmt"
	"time"
)

// AddGrant assigns a privilege to a principal. This operation is
// idempotent - adding an existing grant succeeds silently.
func (s *SQLiteStore) AddGrant(ctx context.Context, g *Grant) error {
	query := `
		INSERT OR IGNORE INTO privilege_grants (principal_id, privilege, scope_target, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		g.PrincipalID,
		g.Privilege,
		g.ScopeTarget,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("adding grant: %w", err)
	}

	s.logger.Debug("added grant", "principal_id", g.PrincipalID, "privilege", g.Privilege, "scope", g.ScopeTarget)
	return nil
}

// RemoveGrant revokes a privilege from a principal. This operation is
// idempotent - removing a non-existent grant succeeds silently.
func (s *SQLiteStore) RemoveGrant(ctx context.Context, principalID, privilege, scopeTarget string) error {
	query := `DELETE FROM privilege_grants WHERE principal_id = ? AND privilege = ? AND scope_target = ?`

	_, err := s.db.ExecContext(ctx, query, principalID, privilege, scopeTarget)
	if err != nil {
		return fmt.Errorf("removing grant: %w", err)
	}

	s.logger.Debug("removed grant", "principal_id", principalID, "privilege", privilege, "scope", scopeTarget)
	return nil
}

// ListGrants returns the grants held directly by a principal. Returns an
// empty slice if the principal holds none.
func (s *SQLiteStore) ListGrants(ctx context.Context, principalID string) ([]*Grant, error) {
	query := `
		SELECT principal_id, privilege, scope_target, created_at
		FROM privilege_grants
		WHERE principal_id = ?
		ORDER BY privilege, scope_target
	`

	rows, err := s.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	grants := []*Grant{}
	for rows.Next() {
		var g Grant
		var createdAtStr string
		if err := rows.Scan(&g.PrincipalID, &g.Privilege, &g.ScopeTarget, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}
		g.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		grants = append(grants, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grants: %w", err)
	}

	return grants, nil
}

// AddGroupMember adds a principal to a group. Idempotent.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, principalID string) error {
	query := `
		INSERT OR IGNORE INTO group_members (group_id, principal_id, created_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, groupID, principalID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("adding group member: %w", err)
	}

	s.logger.Debug("added group member", "group_id", groupID, "principal_id", principalID)
	return nil
}

// RemoveGroupMember removes a principal from a group. Idempotent.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, principalID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = ? AND principal_id = ?",
		groupID, principalID,
	)
	if err != nil {
		return fmt.Errorf("removing group member: %w", err)
	}

	s.logger.Debug("removed group member", "group_id", groupID, "principal_id", principalID)
	return nil
}

// ListGroupsFor returns the ids of groups the principal belongs to.
// Returns an empty slice for principals in no groups.
func (s *SQLiteStore) ListGroupsFor(ctx context.Context, principalID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT group_id FROM group_members WHERE principal_id = ? ORDER BY group_id",
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	groups := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning group id: %w", err)
		}
		groups = append(groups, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating groups: %w", err)
	}

	return groups, nil
}
