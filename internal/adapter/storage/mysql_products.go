package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const productColumns = `id, name, type, quantity, price, description, image, created_by, created_at, last_updated_at, updates`

func scanProduct(row scanner) (domain.Product, error) {
	var (
		p       domain.Product
		typ     string
		price   float64
		updated sql.NullTime
		updates []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &typ, &p.Quantity, &price, &p.Description, &p.Image,
		&p.CreatedBy, &p.CreatedAt, &updated, &updates); err != nil {
		return p, err
	}
	p.Type = domain.ProductType(typ)
	p.Amount = domain.NewAmount(price)
	p.CreatedAt = p.CreatedAt.UTC()
	p.LastUpdatedAt = timePtr(updated)

	var err error
	p.Updates, err = decodeAudit(updates)
	return p, err
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, product domain.Product, credentials []domain.Credential) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	updates, err := encodeAudit(product.Updates)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID, product.Name, string(product.Type), product.Quantity, product.Amount.Whole,
		product.Description, product.Image, product.CreatedBy, product.CreatedAt.UTC(),
		nullTime(product.LastUpdatedAt), updates,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	if err := insertCredentials(ctx, tx, credentials); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(m.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	in, args := inClause(ids)
	rows, err := m.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func productWhere(filter port.ProductFilter) (string, []any) {
	if filter.Type == "" {
		return "", nil
	}
	return " WHERE type = ?", []any{string(filter.Type)}
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, filter port.ProductFilter) ([]domain.Product, error) {
	where, args := productWhere(filter)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := m.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products`+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (m *MySQLAdapter) CountProducts(ctx context.Context, filter port.ProductFilter) (int, error) {
	where, args := productWhere(filter)
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, product domain.Product, entry domain.AuditEntry) error {
	args := []any{product.Name, product.Quantity, product.Amount.Whole, product.Description, product.Image, entry.UpdatedAt.UTC()}
	args = append(args, auditArgs(entry)...)
	args = append(args, product.ID)

	_, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, quantity = ?, price = ?, description = ?, image = ?, last_updated_at = ?, `+pushAudit+`
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	n, err := rowsChanged(res)
	return n > 0, err
}

const credentialColumns = `id, product_id, email, secret, assigned_to, order_id, cart_line_id, created_by, created_at, last_updated_at, updates`

func scanCredential(row scanner) (domain.Credential, error) {
	var (
		c                           domain.Credential
		assignedTo, orderID, lineID sql.NullString
		updated                     sql.NullTime
		updates                     []byte
	)
	if err := row.Scan(&c.ID, &c.ProductID, &c.Email, &c.Secret, &assignedTo, &orderID, &lineID,
		&c.CreatedBy, &c.CreatedAt, &updated, &updates); err != nil {
		return c, err
	}
	c.AssignedTo, c.OrderID, c.CartLineID = assignedTo.String, orderID.String, lineID.String
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastUpdatedAt = timePtr(updated)

	var err error
	c.Updates, err = decodeAudit(updates)
	return c, err
}

func insertCredentials(ctx context.Context, tx *sql.Tx, credentials []domain.Credential) error {
	if len(credentials) == 0 {
		return nil
	}

	values := make([]string, 0, len(credentials))
	args := make([]any, 0, len(credentials)*8)
	for _, c := range credentials {
		updates, err := encodeAudit(c.Updates)
		if err != nil {
			return err
		}
		values = append(values, "(?, ?, ?, ?, NULL, NULL, NULL, ?, ?, NULL, ?)")
		args = append(args, c.ID, c.ProductID, c.Email, c.Secret, c.CreatedBy, c.CreatedAt.UTC(), updates)
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO credentials (`+credentialColumns+`) VALUES `+strings.Join(values, ", "), args...)
	if err != nil {
		return fmt.Errorf("insert credentials: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) AddCredentials(ctx context.Context, productID string, credentials []domain.Credential, entry domain.AuditEntry) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	args := []any{len(credentials), entry.UpdatedAt.UTC()}
	args = append(args, auditArgs(entry)...)
	args = append(args, productID)
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity = quantity + ?, last_updated_at = ?, `+pushAudit+`
		WHERE id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("restock product: %w", err)
	}
	if n, err := rowsChanged(res); err != nil || n == 0 {
		return false, err
	}

	if err := insertCredentials(ctx, tx, credentials); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (m *MySQLAdapter) GetCredential(ctx context.Context, id string) (*domain.Credential, error) {
	c, err := scanCredential(m.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}
	return &c, nil
}

func credentialWhere(filter port.CredentialFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.ProductID != "" {
		clauses = append(clauses, "product_id = ?")
		args = append(args, filter.ProductID)
	}
	if filter.AssignedTo != "" {
		clauses = append(clauses, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (m *MySQLAdapter) ListCredentials(ctx context.Context, filter port.CredentialFilter) ([]domain.Credential, error) {
	where, args := credentialWhere(filter)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := m.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials`+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	creds := []domain.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (m *MySQLAdapter) CountCredentials(ctx context.Context, filter port.CredentialFilter) (int, error) {
	where, args := credentialWhere(filter)
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) UpdateCredential(ctx context.Context, credential domain.Credential, entry domain.AuditEntry) error {
	args := []any{credential.Email, credential.Secret, entry.UpdatedAt.UTC()}
	args = append(args, auditArgs(entry)...)
	args = append(args, credential.ID)

	_, err := m.db.ExecContext(ctx, `
		UPDATE credentials SET email = ?, secret = ?, last_updated_at = ?, `+pushAudit+`
		WHERE id = ? AND assigned_to IS NULL`, args...)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteCredential(ctx context.Context, id string, entry domain.AuditEntry) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var productID string
	err = tx.QueryRowContext(ctx, `
		SELECT product_id FROM credentials WHERE id = ? AND assigned_to IS NULL FOR UPDATE`, id,
	).Scan(&productID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock credential: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}

	args := []any{entry.UpdatedAt.UTC()}
	args = append(args, auditArgs(entry)...)
	args = append(args, productID)
	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity = GREATEST(quantity - 1, 0), last_updated_at = ?, `+pushAudit+`
		WHERE id = ?`, args...); err != nil {
		return false, fmt.Errorf("destock product: %w", err)
	}
	return true, tx.Commit()
}

// FulfillCredentialLine runs in one transaction: lock the line, claim
// line.Quantity free records with SKIP LOCKED so concurrent orders never see
// the same rows, then assign them and mark the line delivered.
func (m *MySQLAdapter) FulfillCredentialLine(ctx context.Context, line domain.CartLine, userID string, entry domain.AuditEntry) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var delivered sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT delivered_at FROM cart_lines WHERE id = ? FOR UPDATE`, line.ID).Scan(&delivered)
	if err != nil {
		return false, fmt.Errorf("lock cart line: %w", err)
	}
	if delivered.Valid {
		return true, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM credentials
		WHERE product_id = ? AND assigned_to IS NULL
		ORDER BY created_at
		LIMIT ?
		FOR UPDATE SKIP LOCKED`, line.Product.ID, line.Quantity)
	if err != nil {
		return false, fmt.Errorf("claim credentials: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return false, fmt.Errorf("scan credential id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("claim credentials: %w", err)
	}
	if len(ids) < line.Quantity {
		return false, nil
	}

	at := entry.UpdatedAt.UTC()
	in, idArgs := inClause(ids)
	args := []any{userID, line.OrderID, line.ID, at}
	args = append(args, auditArgs(domain.NewAuditEntry("Assigned to "+userID, at))...)
	args = append(args, idArgs...)
	res, err := tx.ExecContext(ctx, `
		UPDATE credentials SET assigned_to = ?, order_id = ?, cart_line_id = ?, last_updated_at = ?, `+pushAudit+`
		WHERE id IN (`+in+`) AND assigned_to IS NULL`, args...)
	if err != nil {
		return false, fmt.Errorf("assign credentials: %w", err)
	}
	n, err := rowsChanged(res)
	if err != nil {
		return false, err
	}
	if int(n) != line.Quantity {
		return false, nil
	}

	args = []any{at, at}
	args = append(args, auditArgs(entry)...)
	args = append(args, line.ID)
	if _, err := tx.ExecContext(ctx, `
		UPDATE cart_lines SET delivered_at = ?, last_updated_at = ?, `+pushAudit+`
		WHERE id = ?`, args...); err != nil {
		return false, fmt.Errorf("deliver cart line: %w", err)
	}
	return true, tx.Commit()
}
