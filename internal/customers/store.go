// Package customers looks up prior customer details so returning customers
// are not asked for their name again.
package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Directory answers "what name did this phone book under last time".
type Directory interface {
	LastKnownName(ctx context.Context, tenantID, phone string) (string, bool, error)
}

// Store reads customer history from PostgreSQL. A nil Store is usable and
// reports no prior name, so callers need no wiring guard.
type Store struct {
	db *sql.DB
}

var _ Directory = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// LastKnownName returns the most recent name the phone booked under for the
// tenant, matching on bare digits.
func (s *Store) LastKnownName(ctx context.Context, tenantID, phone string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, nil
	}
	digits := normalizePhoneDigits(phone)
	if digits == "" {
		return "", false, nil
	}
	query := `
		SELECT name FROM customers
		WHERE tenant_id = $1 AND phone = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var name string
	if err := s.db.QueryRowContext(ctx, query, tenantID, digits).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("customers: lookup name: %w", err)
	}
	name = strings.TrimSpace(name)
	return name, name != "", nil
}

// RememberName upserts the name a phone booked under, keeping the directory
// current after each confirmed booking.
func (s *Store) RememberName(ctx context.Context, tenantID, phone, name string) error {
	if s == nil || s.db == nil {
		return nil
	}
	digits := normalizePhoneDigits(phone)
	name = strings.TrimSpace(name)
	if digits == "" || name == "" {
		return nil
	}
	query := `
		INSERT INTO customers (tenant_id, phone, name, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, phone)
		DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, tenantID, digits, name); err != nil {
		return fmt.Errorf("customers: remember name: %w", err)
	}
	return nil
}

func normalizePhoneDigits(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}
