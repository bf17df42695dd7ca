package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const orderColumns = `id, user_id, cart_items, contact_information, status, phase, payment_reference,
	payment_initiated_at, paid_at, delivered_at, refunded_at, created_at, last_updated_at, updates`

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o                       domain.Order
		items, contact, updates []byte
		status, phase           string
		reference               sql.NullString
		initiated, paid         sql.NullTime
		delivered, refunded     sql.NullTime
		updatedAt               sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.UserID, &items, &contact, &status, &phase, &reference,
		&initiated, &paid, &delivered, &refunded, &o.CreatedAt, &updatedAt, &updates); err != nil {
		return o, err
	}

	if err := json.Unmarshal(items, &o.CartItems); err != nil {
		return o, fmt.Errorf("decode cart items: %w", err)
	}
	if len(contact) > 0 && string(contact) != "null" {
		o.ContactInformation = &domain.ContactInformation{}
		if err := json.Unmarshal(contact, o.ContactInformation); err != nil {
			return o, fmt.Errorf("decode contact information: %w", err)
		}
	}
	o.Status = domain.OrderStatus(status)
	o.Phase = domain.Phase(phase)
	o.PaymentReference = reference.String
	o.PaymentInitiatedAt = timePtr(initiated)
	o.PaidAt = timePtr(paid)
	o.DeliveredAt = timePtr(delivered)
	o.RefundedAt = timePtr(refunded)
	o.CreatedAt = o.CreatedAt.UTC()
	o.LastUpdatedAt = timePtr(updatedAt)

	var err error
	o.Updates, err = decodeAudit(updates)
	return o, err
}

func scanOrders(rows *sql.Rows) ([]domain.Order, error) {
	defer rows.Close()
	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CreateOrder inserts the order and tags its lines in one transaction. The
// tag only applies to lines still untagged, so a concurrent checkout of the
// same line makes the row count fall short and the whole insert roll back.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order, lineEntry domain.AuditEntry) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	items, err := json.Marshal(order.CartItems)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}
	var contact []byte
	if order.ContactInformation != nil {
		if contact, err = json.Marshal(order.ContactInformation); err != nil {
			return fmt.Errorf("encode contact information: %w", err)
		}
	}
	updates, err := encodeAudit(order.Updates)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, items, contact, string(order.Status), string(order.Phase),
		nullString(order.PaymentReference), nullTime(order.PaymentInitiatedAt), nullTime(order.PaidAt),
		nullTime(order.DeliveredAt), nullTime(order.RefundedAt), order.CreatedAt.UTC(),
		nullTime(order.LastUpdatedAt), updates,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if len(order.CartItems) > 0 {
		in, idArgs := inClause(order.CartItems)
		args := []any{order.ID, lineEntry.UpdatedAt.UTC()}
		args = append(args, auditArgs(lineEntry)...)
		args = append(args, order.UserID)
		args = append(args, idArgs...)

		result, err := tx.ExecContext(ctx, `
			UPDATE cart_lines SET order_id = ?, last_updated_at = ?, `+pushAudit+`
			WHERE user_id = ? AND order_id IS NULL AND id IN (`+in+`)`, args...)
		if err != nil {
			return fmt.Errorf("tag cart lines: %w", err)
		}

		rows, _ := result.RowsAffected()
		if int(rows) != len(order.CartItems) {
			return port.ErrCartChanged
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) getOrderWhere(ctx context.Context, where string, arg any) (*domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where+` LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return m.getOrderWhere(ctx, "id = ?", id)
}

func (m *MySQLAdapter) GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	return m.getOrderWhere(ctx, "payment_reference = ?", reference)
}

func orderWhere(filter port.OrderFilter) (string, []any) {
	if filter.UserID == "" {
		return "", nil
	}
	return " WHERE user_id = ?", []any{filter.UserID}
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	where, args := orderWhere(filter)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := m.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders`+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return scanOrders(rows)
}

func (m *MySQLAdapter) CountOrders(ctx context.Context, filter port.OrderFilter) (int, error) {
	where, args := orderWhere(filter)
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// updateOrder runs a guarded single-row update and reports whether the guard held.
func (m *MySQLAdapter) updateOrder(ctx context.Context, q querier, set string, setArgs []any, id, guard string, guardArgs []any, entry domain.AuditEntry) (bool, error) {
	args := append([]any{}, setArgs...)
	args = append(args, entry.UpdatedAt.UTC())
	args = append(args, auditArgs(entry)...)
	args = append(args, id)
	args = append(args, guardArgs...)

	res, err := q.ExecContext(ctx, `
		UPDATE orders SET `+set+`, last_updated_at = ?, `+pushAudit+`
		WHERE id = ? AND `+guard, args...)
	if err != nil {
		return false, fmt.Errorf("update order: %w", err)
	}
	n, err := rowsChanged(res)
	return n > 0, err
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (m *MySQLAdapter) RecordPaymentInitiated(ctx context.Context, id, reference string, at time.Time, entry domain.AuditEntry) (bool, error) {
	return m.updateOrder(ctx, m.db,
		"payment_reference = ?, payment_initiated_at = ?", []any{reference, at.UTC()},
		id, "paid_at IS NULL", nil, entry)
}

func (m *MySQLAdapter) MarkPaid(ctx context.Context, id string, paidAt time.Time, entry domain.AuditEntry) (bool, error) {
	return m.updateOrder(ctx, m.db,
		"paid_at = ?, status = IF(delivered_at IS NULL, ?, status), phase = ?",
		[]any{paidAt.UTC(), string(domain.OrderStatusPaid), string(domain.PhasePaidPendingFulfillment)},
		id, "paid_at IS NULL", nil, entry)
}

// ApplyStock wins the phase CAS and decrements stock in the same transaction,
// so a resumed run can never decrement twice.
func (m *MySQLAdapter) ApplyStock(ctx context.Context, id string, decrements []domain.StockDecrement, entry domain.AuditEntry) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	won, err := m.updateOrder(ctx, tx,
		"phase = ?", []any{string(domain.PhaseStockApplied)},
		id, "phase = ?", []any{string(domain.PhasePaidPendingFulfillment)}, entry)
	if err != nil || !won {
		return false, err
	}

	for _, d := range decrements {
		args := []any{d.Quantity, d.Entry.UpdatedAt.UTC()}
		args = append(args, auditArgs(d.Entry)...)
		args = append(args, d.ProductID)
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = GREATEST(quantity - ?, 0), last_updated_at = ?, `+pushAudit+`
			WHERE id = ?`, args...); err != nil {
			return false, fmt.Errorf("decrement stock of %s: %w", d.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit stock: %w", err)
	}
	return true, nil
}

func (m *MySQLAdapter) AdvancePhase(ctx context.Context, id string, from []domain.Phase, to domain.Phase, entry domain.AuditEntry) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	phases := make([]string, len(from))
	for i, p := range from {
		phases[i] = string(p)
	}
	in, args := inClause(phases)
	return m.updateOrder(ctx, m.db, "phase = ?", []any{string(to)}, id, "phase IN ("+in+")", args, entry)
}

func (m *MySQLAdapter) MarkDelivered(ctx context.Context, id string, entry domain.AuditEntry) (bool, error) {
	return m.updateOrder(ctx, m.db,
		"status = ?, delivered_at = ?", []any{string(domain.OrderStatusDelivered), entry.UpdatedAt.UTC()},
		id, "delivered_at IS NULL", nil, entry)
}

func (m *MySQLAdapter) ListStalled(ctx context.Context, phases []domain.Phase, before time.Time, limit int) ([]domain.Order, error) {
	if len(phases) == 0 {
		return []domain.Order{}, nil
	}
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	in, args := inClause(names)
	args = append(args, before.UTC(), string(domain.PhaseBackordered), limit)

	rows, err := m.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE phase IN (`+in+`) AND paid_at IS NOT NULL AND COALESCE(last_updated_at, created_at) < ?
		ORDER BY phase = ?, COALESCE(last_updated_at, created_at), id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query stalled orders: %w", err)
	}
	return scanOrders(rows)
}
