package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
)

const addressColumns = `id, user_id, address, longitude, latitude, created_at, last_updated_at, updates`

func scanAddress(row scanner) (domain.Address, error) {
	var (
		a       domain.Address
		updated sql.NullTime
		updates []byte
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Address, &a.Coordinates.Longitude, &a.Coordinates.Latitude,
		&a.CreatedAt, &updated, &updates); err != nil {
		return a, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.LastUpdatedAt = timePtr(updated)

	var err error
	a.Updates, err = decodeAudit(updates)
	return a, err
}

func (m *MySQLAdapter) CreateAddress(ctx context.Context, address domain.Address) error {
	updates, err := encodeAudit(address.Updates)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO addresses (`+addressColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		address.ID, address.UserID, address.Address, address.Coordinates.Longitude, address.Coordinates.Latitude,
		address.CreatedAt.UTC(), nullTime(address.LastUpdatedAt), updates,
	)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) queryAddress(ctx context.Context, query string, args ...any) (*domain.Address, error) {
	a, err := scanAddress(m.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query address: %w", err)
	}
	return &a, nil
}

func (m *MySQLAdapter) GetAddress(ctx context.Context, id string) (*domain.Address, error) {
	return m.queryAddress(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = ?`, id)
}

func (m *MySQLAdapter) FindAddressByCoordinates(ctx context.Context, userID string, coordinates domain.Coordinates) (*domain.Address, error) {
	return m.queryAddress(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE user_id = ? AND longitude = ? AND latitude = ?
		LIMIT 1`, userID, coordinates.Longitude, coordinates.Latitude)
}

func (m *MySQLAdapter) ListAddresses(ctx context.Context, userID string, offset, limit int) ([]domain.Address, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	addresses := []domain.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

func (m *MySQLAdapter) CountAddresses(ctx context.Context, userID string) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count addresses: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) UpdateAddress(ctx context.Context, address domain.Address, entry domain.AuditEntry) error {
	args := []any{address.Address, address.Coordinates.Longitude, address.Coordinates.Latitude, entry.UpdatedAt.UTC()}
	args = append(args, auditArgs(entry)...)
	args = append(args, address.ID)

	_, err := m.db.ExecContext(ctx, `
		UPDATE addresses SET address = ?, longitude = ?, latitude = ?, last_updated_at = ?, `+pushAudit+`
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteAddress(ctx context.Context, id string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete address: %w", err)
	}
	n, err := rowsChanged(res)
	return n > 0, err
}
