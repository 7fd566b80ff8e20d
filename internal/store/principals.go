// ABOUTME: Principal CRUD store methods for the principals table
// ABOUTME: Ids are immutable once assigned; updates preserve created_at

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreatePrincipal inserts a new principal. The caller assigns the ID;
// ids are never reused or overwritten.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	query := `
		INSERT INTO principals (id, type, nickname, active, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Type,
		p.Nickname,
		boolToInt(p.Active),
		formatTime(p.CreatedAt),
		formatTime(p.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Info("created principal", "id", p.ID, "type", p.Type, "nickname", p.Nickname)
	return nil
}

// GetPrincipal retrieves a principal by ID.
// Returns ErrPrincipalNotFound if it doesn't exist.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	query := `
		SELECT id, type, nickname, active, created_at, modified_at
		FROM principals
		WHERE id = ?
	`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	return p, nil
}

// UpdatePrincipal updates a principal's mutable fields. The id and
// created_at columns are never touched; modified_at is taken from the
// struct so callers control the refresh.
func (s *SQLiteStore) UpdatePrincipal(ctx context.Context, p *Principal) error {
	query := `
		UPDATE principals
		SET type = ?, nickname = ?, active = ?, modified_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		p.Type,
		p.Nickname,
		boolToInt(p.Active),
		formatTime(p.ModifiedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating principal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Debug("updated principal", "id", p.ID)
	return nil
}

// ListPrincipals returns principals matching the filter, oldest first.
func (s *SQLiteStore) ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]*Principal, error) {
	query := `
		SELECT id, type, nickname, active, created_at, modified_at
		FROM principals
	`

	var conditions []string
	var args []any

	if filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *filter.Type)
	}
	if filter.Active != nil {
		conditions = append(conditions, "active = ?")
		args = append(args, boolToInt(*filter.Active))
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying principals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var principals []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		principals = append(principals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}

	return principals, nil
}

// DeletePrincipal removes a principal. Identities, grants, devices, and
// passwords follow via ON DELETE CASCADE.
func (s *SQLiteStore) DeletePrincipal(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM principals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting principal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Info("deleted principal", "id", id)
	return nil
}

// SetPasswordHash stores or replaces a principal's password hash.
func (s *SQLiteStore) SetPasswordHash(ctx context.Context, principalID, hash string) error {
	query := `
		INSERT INTO user_passwords (principal_id, password_hash, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET password_hash = excluded.password_hash, updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, principalID, hash, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("storing password hash: %w", err)
	}

	s.logger.Info("set password", "principal_id", principalID)
	return nil
}

// GetPasswordHash retrieves a principal's password hash.
// Returns ErrNotFound if no password has been set.
func (s *SQLiteStore) GetPasswordHash(ctx context.Context, principalID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT password_hash FROM user_passwords WHERE principal_id = ?",
		principalID,
	).Scan(&hash)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying password hash: %w", err)
	}
	return hash, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var p Principal
	var active int
	var createdAtStr, modifiedAtStr string

	if err := row.Scan(&p.ID, &p.Type, &p.Nickname, &active, &createdAtStr, &modifiedAtStr); err != nil {
		return nil, err
	}

	p.Active = active != 0

	var err error
	p.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	p.ModifiedAt, err = parseTime(modifiedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing modified_at: %w", err)
	}

	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
