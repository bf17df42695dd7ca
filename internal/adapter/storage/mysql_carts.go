package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
)

const lineColumns = `id, user_id, product_id, product_name, product_image, product_type, product_description,
	unit_price, quantity, order_id, paid_at, delivered_at, created_at, last_updated_at, updates`

func scanLine(row scanner) (domain.CartLine, error) {
	var (
		l                          domain.CartLine
		typ                        string
		price                      float64
		orderID                    sql.NullString
		paid, delivered, updatedAt sql.NullTime
		updates                    []byte
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.Product.ID, &l.Product.Name, &l.Product.Image, &typ,
		&l.Product.Description, &price, &l.Quantity, &orderID, &paid, &delivered, &l.CreatedAt,
		&updatedAt, &updates); err != nil {
		return l, err
	}
	l.Product.Type = domain.ProductType(typ)
	l.Product.Amount = domain.NewAmount(price)
	l.OrderID = orderID.String
	l.PaidAt = timePtr(paid)
	l.DeliveredAt = timePtr(delivered)
	l.CreatedAt = l.CreatedAt.UTC()
	l.LastUpdatedAt = timePtr(updatedAt)

	var err error
	l.Updates, err = decodeAudit(updates)
	return l, err
}

func scanLines(rows *sql.Rows) ([]domain.CartLine, error) {
	defer rows.Close()
	lines := []domain.CartLine{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (m *MySQLAdapter) CreateLine(ctx context.Context, line domain.CartLine) error {
	updates, err := encodeAudit(line.Updates)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO cart_lines (`+lineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID, line.UserID, line.Product.ID, line.Product.Name, line.Product.Image,
		string(line.Product.Type), line.Product.Description, line.Product.Amount.Whole, line.Quantity,
		nullString(line.OrderID), nullTime(line.PaidAt), nullTime(line.DeliveredAt),
		line.CreatedAt.UTC(), nullTime(line.LastUpdatedAt), updates,
	)
	if err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetLine(ctx context.Context, id string) (*domain.CartLine, error) {
	l, err := scanLine(m.db.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM cart_lines WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart line: %w", err)
	}
	return &l, nil
}

func (m *MySQLAdapter) FindActiveLine(ctx context.Context, userID, productID string) (*domain.CartLine, error) {
	l, err := scanLine(m.db.QueryRowContext(ctx, `
		SELECT `+lineColumns+` FROM cart_lines
		WHERE user_id = ? AND product_id = ? AND order_id IS NULL
		ORDER BY created_at LIMIT 1`, userID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart line: %w", err)
	}
	return &l, nil
}

func (m *MySQLAdapter) ListActiveLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+lineColumns+` FROM cart_lines
		WHERE user_id = ? AND order_id IS NULL
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	return scanLines(rows)
}

func (m *MySQLAdapter) ListLines(ctx context.Context, ids []string) ([]domain.CartLine, error) {
	if len(ids) == 0 {
		return []domain.CartLine{}, nil
	}

	in, args := inClause(ids)
	rows, err := m.db.QueryContext(ctx, `SELECT `+lineColumns+` FROM cart_lines WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	found, err := scanLines(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.CartLine, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}
	lines := make([]domain.CartLine, 0, len(found))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func (m *MySQLAdapter) UpdateLineQuantity(ctx context.Context, id string, quantity int, entry domain.AuditEntry) (bool, error) {
	args := []any{quantity, entry.UpdatedAt.UTC()}
	args = append(args, auditArgs(entry)...)
	args = append(args, id)

	res, err := m.db.ExecContext(ctx, `
		UPDATE cart_lines SET quantity = ?, last_updated_at = ?, `+pushAudit+`
		WHERE id = ? AND order_id IS NULL`, args...)
	if err != nil {
		return false, fmt.Errorf("update cart line: %w", err)
	}
	n, err := rowsChanged(res)
	return n > 0, err
}

func (m *MySQLAdapter) DeleteLine(ctx context.Context, id string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ? AND order_id IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("delete cart line: %w", err)
	}
	n, err := rowsChanged(res)
	return n > 0, err
}

func (m *MySQLAdapter) DeleteActiveLines(ctx context.Context, userID string) (int64, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = ? AND order_id IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return rowsChanged(res)
}

// markLines sets column on the lines among ids where it is still NULL.
func (m *MySQLAdapter) markLines(ctx context.Context, column string, ids []string, entry domain.AuditEntry) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	at := entry.UpdatedAt.UTC()
	in, idArgs := inClause(ids)
	args := []any{at, at}
	args = append(args, auditArgs(entry)...)
	args = append(args, idArgs...)

	res, err := m.db.ExecContext(ctx, `
		UPDATE cart_lines SET `+column+` = ?, last_updated_at = ?, `+pushAudit+`
		WHERE id IN (`+in+`) AND `+column+` IS NULL`, args...)
	if err != nil {
		return 0, fmt.Errorf("set %s: %w", column, err)
	}
	return rowsChanged(res)
}

func (m *MySQLAdapter) MarkLinesPaid(ctx context.Context, ids []string, entry domain.AuditEntry) (int64, error) {
	return m.markLines(ctx, "paid_at", ids, entry)
}

func (m *MySQLAdapter) MarkLineDelivered(ctx context.Context, id string, entry domain.AuditEntry) (bool, error) {
	n, err := m.markLines(ctx, "delivered_at", []string{id}, entry)
	return n > 0, err
}

func (m *MySQLAdapter) MarkLinesDelivered(ctx context.Context, ids []string, entry domain.AuditEntry) (int64, error) {
	return m.markLines(ctx, "delivered_at", ids, entry)
}

func (m *MySQLAdapter) CountUndelivered(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inClause(ids)
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cart_lines WHERE id IN (`+in+`) AND delivered_at IS NULL`, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count undelivered lines: %w", err)
	}
	return n, nil
}
