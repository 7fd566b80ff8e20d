// ABOUTME: WebAuthn device store methods including the atomic counter update
// ABOUTME: Counter advance is a single conditional UPDATE, never read-then-write

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateDevice stores a new WebAuthn device. Returns ErrDuplicateCredential
// if the credential ID is already registered to any principal.
func (s *SQLiteStore) CreateDevice(ctx context.Context, d *Device) error {
	query := `
		INSERT INTO webauthn_devices (id, principal_id, credential_id, public_key, attestation_type, transports, counter, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		d.PrincipalID,
		d.CredentialID,
		d.PublicKey,
		d.AttestationType,
		d.Transports,
		d.Counter,
		formatTime(d.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateCredential
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	s.logger.Info("created webauthn device", "id", d.ID, "principal_id", d.PrincipalID)
	return nil
}

// GetDeviceByCredentialID retrieves a device by its authenticator-issued
// credential handle. Returns ErrNotFound if no device matches.
func (s *SQLiteStore) GetDeviceByCredentialID(ctx context.Context, credentialID []byte) (*Device, error) {
	query := `
		SELECT id, principal_id, credential_id, public_key, attestation_type, transports, counter, flagged_at, created_at
		FROM webauthn_devices
		WHERE credential_id = ?
	`

	d, err := scanDevice(s.db.QueryRowContext(ctx, query, credentialID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

// ListDevices returns all devices registered to a principal.
func (s *SQLiteStore) ListDevices(ctx context.Context, principalID string) ([]*Device, error) {
	query := `
		SELECT id, principal_id, credential_id, public_key, attestation_type, transports, counter, flagged_at, created_at
		FROM webauthn_devices
		WHERE principal_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// UpdateDeviceCounter advances a device's signature counter. The update is
// a single conditional statement: it only succeeds when the stored counter
// is zero (authenticator never reported one) or strictly below the new
// value. Returns ErrCounterRegression when the condition fails - the
// stored counter is never modified in that case - or ErrNotFound if the
// device doesn't exist.
func (s *SQLiteStore) UpdateDeviceCounter(ctx context.Context, id string, counter uint32) error {
	query := `
		UPDATE webauthn_devices
		SET counter = ?
		WHERE id = ?
		  AND (counter = 0 OR counter < ?)
	`

	result, err := s.db.ExecContext(ctx, query, counter, id, counter)
	if err != nil {
		return fmt.Errorf("updating device counter: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// rowsAffected == 0 - determine whether the device is missing or the
	// counter went backwards
	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM webauthn_devices WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying device: %w", err)
	}

	return ErrCounterRegression
}

// FlagDevice marks a device for administrative review, typically after
// clone detection. Returns ErrNotFound if the device doesn't exist.
func (s *SQLiteStore) FlagDevice(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE webauthn_devices SET flagged_at = ? WHERE id = ?",
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("flagging device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Warn("flagged webauthn device for review", "id", id)
	return nil
}

// DeleteDevice removes a WebAuthn device.
func (s *SQLiteStore) DeleteDevice(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM webauthn_devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted webauthn device", "id", id)
	return nil
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var attestationType, transports, flaggedAt sql.NullString
	var createdAtStr string

	if err := row.Scan(
		&d.ID,
		&d.PrincipalID,
		&d.CredentialID,
		&d.PublicKey,
		&attestationType,
		&transports,
		&d.Counter,
		&flaggedAt,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	d.AttestationType = attestationType.String
	d.Transports = transports.String

	var err error
	d.FlaggedAt, err = parseNullTime(flaggedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing flagged_at: %w", err)
	}
	d.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &d, nil
}
