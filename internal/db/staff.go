package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildtall-systems/printq/internal/domain"
)

// AddStaff adds a roster entry. Returns domain.ErrStaffExists if the email
// is already present.
func (db *DB) AddStaff(ctx context.Context, s domain.Staff) (domain.Staff, error) {
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	if s.Email == "" {
		return domain.Staff{}, errors.New("staff email is required")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()

	_, err := db.ExecContext(ctx, `
		INSERT INTO staff (id, name, email, role, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.Name, s.Email, s.Role, s.Active, s.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Staff{}, domain.ErrStaffExists
	}
	if err != nil {
		return domain.Staff{}, fmt.Errorf("inserting staff: %w", err)
	}
	return s, nil
}

// RemoveStaff deletes a roster entry by email.
func (db *DB) RemoveStaff(ctx context.Context, email string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM staff WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("deleting staff: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrStaffNotFound
	}
	return nil
}

// ListStaff returns the roster ordered by name.
func (db *DB) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, email, role, active, created_at
		FROM staff ORDER BY name, email
	`)
	if err != nil {
		return nil, fmt.Errorf("querying staff: %w", err)
	}
	defer rows.Close()

	var staff []domain.Staff
	for rows.Next() {
		var s domain.Staff
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Role, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning staff: %w", err)
		}
		staff = append(staff, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating staff: %w", err)
	}
	return staff, nil
}

// GetStaffByEmail returns a roster entry by email.
func (db *DB) GetStaffByEmail(ctx context.Context, email string) (domain.Staff, error) {
	var s domain.Staff
	err := db.QueryRowContext(ctx, `
		SELECT id, name, email, role, active, created_at
		FROM staff WHERE email = ?
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&s.ID, &s.Name, &s.Email, &s.Role, &s.Active, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Staff{}, domain.ErrStaffNotFound
	}
	if err != nil {
		return domain.Staff{}, fmt.Errorf("querying staff: %w", err)
	}
	return s, nil
}
