// ABOUTME: Single-use ceremony challenge store methods
// ABOUTME: Consume is one DELETE RETURNING statement so read-and-delete is atomic

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateChallenge stores a freshly issued ceremony challenge.
func (s *SQLiteStore) CreateChallenge(ctx context.Context, c *Challenge) error {
	query := `
		INSERT INTO challenges (value, principal_id, session_data, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	var principalID sql.NullString
	if c.PrincipalID != "" {
		principalID = sql.NullString{String: c.PrincipalID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		c.Value,
		principalID,
		c.SessionData,
		formatTime(c.CreatedAt),
		formatTime(c.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting challenge: %w", err)
	}

	s.logger.Debug("created challenge", "principal_id", c.PrincipalID, "expires_at", c.ExpiresAt)
	return nil
}

// ConsumeChallenge atomically deletes a challenge and returns it. The
// single DELETE ... RETURNING statement guarantees that two concurrent
// consumers cannot both observe the row: the loser gets
// ErrChallengeNotFound. Expiry is not checked here - the row is consumed
// regardless of outcome, and the caller inspects ExpiresAt.
func (s *SQLiteStore) ConsumeChallenge(ctx context.Context, value string) (*Challenge, error) {
	query := `
		DELETE FROM challenges
		WHERE value = ?
		RETURNING principal_id, session_data, created_at, expires_at
	`

	c := Challenge{Value: value}
	var principalID sql.NullString
	var createdAtStr, expiresAtStr string

	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&principalID,
		&c.SessionData,
		&createdAtStr,
		&expiresAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming challenge: %w", err)
	}

	c.PrincipalID = principalID.String

	c.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	c.ExpiresAt, err = parseTime(expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	s.logger.Debug("consumed challenge", "principal_id", c.PrincipalID)
	return &c, nil
}

// DeleteExpiredChallenges removes challenges whose ceremony window has
// closed without a response.
func (s *SQLiteStore) DeleteExpiredChallenges(ctx context.Context) error {
	now := formatTime(time.Now())
	result, err := s.db.ExecContext(ctx, "DELETE FROM challenges WHERE expires_at <= ?", now)
	if err != nil {
		return fmt.Errorf("deleting expired challenges: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired challenges", "count", rowsAffected)
	}
	return nil
}
