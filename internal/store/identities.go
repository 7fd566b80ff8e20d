// ABOUTME: Identity store methods enforcing global URI uniqueness
// ABOUTME: Principal+identity creation is a single transaction, not check-then-act

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreatePrincipalWithIdentity inserts a principal and its identity in one
// transaction. The identity table's uri primary key is the uniqueness
// authority: if the URI is already bound to any principal the whole
// transaction rolls back and ErrDuplicateIdentity is returned. Two
// concurrent creations for the same URI therefore succeed exactly once.
func (s *SQLiteStore) CreatePrincipalWithIdentity(ctx context.Context, p *Principal, ident *Identity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO principals (id, type, nickname, active, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
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

	if err := insertIdentity(ctx, tx, ident); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueConstraintError(err) {
			return identityConstraintError(err)
		}
		return fmt.Errorf("committing principal with identity: %w", err)
	}

	s.logger.Info("created principal with identity",
		"id", p.ID, "type", p.Type, "uri", ident.URI)
	return nil
}

// CreateIdentity attaches an additional identity to an existing principal.
// Returns ErrDuplicateIdentity if the URI is bound to any principal, or
// ErrPrimaryIdentityExists if a second primary identity is attempted.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, ident *Identity) error {
	if err := insertIdentity(ctx, s.db, ident); err != nil {
		return err
	}

	s.logger.Info("created identity", "principal_id", ident.PrincipalID, "uri", ident.URI)
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertIdentity(ctx context.Context, db execer, ident *Identity) error {
	var verifiedAt sql.NullString
	if ident.VerifiedAt != nil {
		verifiedAt = sql.NullString{String: formatTime(*ident.VerifiedAt), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO principal_identities (uri, principal_id, is_primary, label, verified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ident.URI,
		ident.PrincipalID,
		boolToInt(ident.IsPrimary),
		ident.Label,
		verifiedAt,
		formatTime(ident.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return identityConstraintError(err)
		}
		return fmt.Errorf("inserting identity: %w", err)
	}
	return nil
}

// identityConstraintError maps a unique violation to the right sentinel.
// The uri primary key and the partial primary-identity index produce
// distinct constraint messages.
func identityConstraintError(err error) error {
	if strings.Contains(err.Error(), "idx_identities_primary") {
		return ErrPrimaryIdentityExists
	}
	return ErrDuplicateIdentity
}

// GetPrincipalByIdentity resolves an identity URI to its principal.
// Returns ErrPrincipalNotFound if the URI is not bound.
func (s *SQLiteStore) GetPrincipalByIdentity(ctx context.Context, uri string) (*Principal, error) {
	query := `
		SELECT p.id, p.type, p.nickname, p.active, p.created_at, p.modified_at
		FROM principals p
		JOIN principal_identities i ON i.principal_id = p.id
		WHERE i.uri = ?
	`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, uri))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal by identity: %w", err)
	}
	return p, nil
}

// ListIdentities returns all identities bound to a principal, primary first.
func (s *SQLiteStore) ListIdentities(ctx context.Context, principalID string) ([]*Identity, error) {
	query := `
		SELECT uri, principal_id, is_primary, label, verified_at, created_at
		FROM principal_identities
		WHERE principal_id = ?
		ORDER BY is_primary DESC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var identities []*Identity
	for rows.Next() {
		var ident Identity
		var isPrimary int
		var label, verifiedAt sql.NullString
		var createdAtStr string

		if err := rows.Scan(&ident.URI, &ident.PrincipalID, &isPrimary, &label, &verifiedAt, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}

		ident.IsPrimary = isPrimary != 0
		ident.Label = label.String

		ident.VerifiedAt, err = parseNullTime(verifiedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing verified_at: %w", err)
		}
		ident.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		identities = append(identities, &ident)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}

	return identities, nil
}

// MarkIdentityVerified records the verification timestamp for an identity.
// Returns ErrNotFound if the URI is not bound to any principal.
func (s *SQLiteStore) MarkIdentityVerified(ctx context.Context, uri string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE principal_identities SET verified_at = ? WHERE uri = ?",
		formatTime(time.Now()), uri,
	)
	if err != nil {
		return fmt.Errorf("marking identity verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("marked identity verified", "uri", uri)
	return nil
}
