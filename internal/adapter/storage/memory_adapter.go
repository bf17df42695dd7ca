package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// MemoryAdapter keeps every table and the session cache in process memory
// behind one mutex. It honours the same guards as the MySQL and Redis
// adapters and backs the memory storage driver and tests.
type MemoryAdapter struct {
	mu          sync.Mutex
	products    map[string]domain.Product
	credentials map[string]domain.Credential
	lines       map[string]domain.CartLine
	orders      map[string]domain.Order
	addresses   map[string]domain.Address
	sessions    map[string]domain.CheckoutSession
	locks       map[string]memoryLock
	now         func() time.Time
}

type memoryLock struct {
	token   string
	expires time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:    map[string]domain.Product{},
		credentials: map[string]domain.Credential{},
		lines:       map[string]domain.CartLine{},
		orders:      map[string]domain.Order{},
		addresses:   map[string]domain.Address{},
		sessions:    map[string]domain.CheckoutSession{},
		locks:       map[string]memoryLock{},
		now:         time.Now,
	}
}

func (m *MemoryAdapter) Ping(context.Context) error { return nil }

func withEntry(updates []domain.AuditEntry, entry domain.AuditEntry) []domain.AuditEntry {
	out := make([]domain.AuditEntry, 0, len(updates)+1)
	out = append(out, updates...)
	return append(out, entry)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func stamp(entry domain.AuditEntry) *time.Time {
	at := entry.UpdatedAt
	return &at
}

func cloneProduct(p domain.Product) domain.Product {
	p.Updates = append([]domain.AuditEntry{}, p.Updates...)
	p.LastUpdatedAt = copyTime(p.LastUpdatedAt)
	return p
}

func cloneCredential(c domain.Credential) domain.Credential {
	c.Updates = append([]domain.AuditEntry{}, c.Updates...)
	c.LastUpdatedAt = copyTime(c.LastUpdatedAt)
	return c
}

func cloneLine(l domain.CartLine) domain.CartLine {
	l.Updates = append([]domain.AuditEntry{}, l.Updates...)
	l.PaidAt = copyTime(l.PaidAt)
	l.DeliveredAt = copyTime(l.DeliveredAt)
	l.LastUpdatedAt = copyTime(l.LastUpdatedAt)
	return l
}

func cloneOrder(o domain.Order) domain.Order {
	o.CartItems = append([]string{}, o.CartItems...)
	o.Updates = append([]domain.AuditEntry{}, o.Updates...)
	if o.ContactInformation != nil {
		c := *o.ContactInformation
		o.ContactInformation = &c
	}
	o.PaymentInitiatedAt = copyTime(o.PaymentInitiatedAt)
	o.PaidAt = copyTime(o.PaidAt)
	o.DeliveredAt = copyTime(o.DeliveredAt)
	o.RefundedAt = copyTime(o.RefundedAt)
	o.LastUpdatedAt = copyTime(o.LastUpdatedAt)
	return o
}

func cloneAddress(a domain.Address) domain.Address {
	a.Updates = append([]domain.AuditEntry{}, a.Updates...)
	a.LastUpdatedAt = copyTime(a.LastUpdatedAt)
	return a
}

// page applies offset/limit to an already sorted slice.
func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// Products

func (m *MemoryAdapter) CreateProduct(_ context.Context, product domain.Product, credentials []domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.products[product.ID] = cloneProduct(product)
	for _, c := range credentials {
		m.credentials[c.ID] = cloneCredential(c)
	}
	return nil
}

func (m *MemoryAdapter) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	p = cloneProduct(p)
	return &p, nil
}

func (m *MemoryAdapter) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = cloneProduct(p)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) filterProducts(filter port.ProductFilter) []domain.Product {
	var out []domain.Product
	for _, p := range m.products {
		if filter.Type == "" || p.Type == filter.Type {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryAdapter) ListProducts(_ context.Context, filter port.ProductFilter) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.filterProducts(filter), filter.Offset, filter.Limit), nil
}

func (m *MemoryAdapter) CountProducts(_ context.Context, filter port.ProductFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterProducts(filter)), nil
}

func (m *MemoryAdapter) UpdateProduct(_ context.Context, product domain.Product, entry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[product.ID]
	if !ok {
		return nil
	}
	p.Name, p.Quantity, p.Amount = product.Name, product.Quantity, product.Amount
	p.Description, p.Image = product.Description, product.Image
	p.LastUpdatedAt = stamp(entry)
	p.Updates = withEntry(p.Updates, entry)
	m.products[p.ID] = p
	return nil
}

func (m *MemoryAdapter) DeleteProduct(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return false, nil
	}
	delete(m.products, id)
	return true, nil
}

// Credentials

func (m *MemoryAdapter) AddCredentials(_ context.Context, productID string, credentials []domain.Credential, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return false, nil
	}
	for _, c := range credentials {
		m.credentials[c.ID] = cloneCredential(c)
	}
	p.Quantity += len(credentials)
	p.LastUpdatedAt = stamp(entry)
	p.Updates = withEntry(p.Updates, entry)
	m.products[productID] = p
	return true, nil
}

func (m *MemoryAdapter) GetCredential(_ context.Context, id string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.credentials[id]
	if !ok {
		return nil, nil
	}
	c = cloneCredential(c)
	return &c, nil
}

func (m *MemoryAdapter) filterCredentials(filter port.CredentialFilter) []domain.Credential {
	var out []domain.Credential
	for _, c := range m.credentials {
		if filter.ProductID != "" && c.ProductID != filter.ProductID {
			continue
		}
		if filter.AssignedTo != "" && c.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.Unassigned && c.Assigned() {
			continue
		}
		out = append(out, cloneCredential(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryAdapter) ListCredentials(_ context.Context, filter port.CredentialFilter) ([]domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.filterCredentials(filter), filter.Offset, filter.Limit), nil
}

func (m *MemoryAdapter) CountCredentials(_ context.Context, filter port.CredentialFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterCredentials(filter)), nil
}

func (m *MemoryAdapter) UpdateCredential(_ context.Context, credential domain.Credential, entry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.credentials[credential.ID]
	if !ok || c.Assigned() {
		return nil
	}
	c.Email, c.Secret = credential.Email, credential.Secret
	c.LastUpdatedAt = stamp(entry)
	c.Updates = withEntry(c.Updates, entry)
	m.credentials[c.ID] = c
	return nil
}

func (m *MemoryAdapter) DeleteCredential(_ context.Context, id string, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.credentials[id]
	if !ok || c.Assigned() {
		return false, nil
	}
	delete(m.credentials, id)
	if p, ok := m.products[c.ProductID]; ok {
		p.Quantity = max(p.Quantity-1, 0)
		p.LastUpdatedAt = stamp(entry)
		p.Updates = withEntry(p.Updates, entry)
		m.products[p.ID] = p
	}
	return true, nil
}

func (m *MemoryAdapter) FulfillCredentialLine(_ context.Context, line domain.CartLine, userID string, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.lines[line.ID]
	if !ok {
		return false, nil
	}
	if stored.Delivered() {
		return true, nil
	}

	var free []domain.Credential
	for _, c := range m.credentials {
		if c.ProductID == line.Product.ID && !c.Assigned() {
			free = append(free, c)
		}
	}
	if len(free) < line.Quantity {
		return false, nil
	}
	sort.Slice(free, func(i, j int) bool {
		if free[i].CreatedAt.Equal(free[j].CreatedAt) {
			return free[i].ID < free[j].ID
		}
		return free[i].CreatedAt.Before(free[j].CreatedAt)
	})

	for _, c := range free[:line.Quantity] {
		c.AssignedTo, c.OrderID, c.CartLineID = userID, stored.OrderID, stored.ID
		c.LastUpdatedAt = stamp(entry)
		c.Updates = withEntry(c.Updates, domain.NewAuditEntry("Assigned to "+userID, entry.UpdatedAt))
		m.credentials[c.ID] = c
	}
	stored.DeliveredAt = stamp(entry)
	stored.LastUpdatedAt = stamp(entry)
	stored.Updates = withEntry(stored.Updates, entry)
	m.lines[stored.ID] = stored
	return true, nil
}

// Cart lines

func (m *MemoryAdapter) CreateLine(_ context.Context, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[line.ID] = cloneLine(line)
	return nil
}

func (m *MemoryAdapter) GetLine(_ context.Context, id string) (*domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lines[id]
	if !ok {
		return nil, nil
	}
	l = cloneLine(l)
	return &l, nil
}

func (m *MemoryAdapter) activeLines(userID string) []domain.CartLine {
	var out []domain.CartLine
	for _, l := range m.lines {
		if l.UserID == userID && l.Active() {
			out = append(out, cloneLine(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryAdapter) FindActiveLine(_ context.Context, userID, productID string) (*domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.activeLines(userID) {
		if l.Product.ID == productID {
			return &l, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) ListActiveLines(_ context.Context, userID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := m.activeLines(userID)
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return lines, nil
}

func (m *MemoryAdapter) ListLines(_ context.Context, ids []string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.CartLine, 0, len(ids))
	for _, id := range ids {
		if l, ok := m.lines[id]; ok {
			out = append(out, cloneLine(l))
		}
	}
	return out, nil
}

func (m *MemoryAdapter) UpdateLineQuantity(_ context.Context, id string, quantity int, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lines[id]
	if !ok || !l.Active() {
		return false, nil
	}
	l.Quantity = quantity
	l.LastUpdatedAt = stamp(entry)
	l.Updates = withEntry(l.Updates, entry)
	m.lines[id] = l
	return true, nil
}

func (m *MemoryAdapter) DeleteLine(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lines[id]
	if !ok || !l.Active() {
		return false, nil
	}
	delete(m.lines, id)
	return true, nil
}

func (m *MemoryAdapter) DeleteActiveLines(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, l := range m.lines {
		if l.UserID == userID && l.Active() {
			delete(m.lines, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryAdapter) MarkLinesPaid(_ context.Context, ids []string, entry domain.AuditEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, id := range ids {
		l, ok := m.lines[id]
		if !ok || l.PaidAt != nil {
			continue
		}
		l.PaidAt = stamp(entry)
		l.LastUpdatedAt = stamp(entry)
		l.Updates = withEntry(l.Updates, entry)
		m.lines[id] = l
		n++
	}
	return n, nil
}

func (m *MemoryAdapter) markDelivered(ids []string, entry domain.AuditEntry) int64 {
	var n int64
	for _, id := range ids {
		l, ok := m.lines[id]
		if !ok || l.Delivered() {
			continue
		}
		l.DeliveredAt = stamp(entry)
		l.LastUpdatedAt = stamp(entry)
		l.Updates = withEntry(l.Updates, entry)
		m.lines[id] = l
		n++
	}
	return n
}

func (m *MemoryAdapter) MarkLineDelivered(_ context.Context, id string, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markDelivered([]string{id}, entry) > 0, nil
}

func (m *MemoryAdapter) MarkLinesDelivered(_ context.Context, ids []string, entry domain.AuditEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markDelivered(ids, entry), nil
}

func (m *MemoryAdapter) CountUndelivered(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		if l, ok := m.lines[id]; ok && !l.Delivered() {
			n++
		}
	}
	return n, nil
}

// Orders

func (m *MemoryAdapter) CreateOrder(_ context.Context, order domain.Order, lineEntry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range order.CartItems {
		l, ok := m.lines[id]
		if !ok || !l.Active() || l.UserID != order.UserID {
			return port.ErrCartChanged
		}
	}
	for _, id := range order.CartItems {
		l := m.lines[id]
		l.OrderID = order.ID
		l.LastUpdatedAt = stamp(lineEntry)
		l.Updates = withEntry(l.Updates, lineEntry)
		m.lines[id] = l
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryAdapter) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (m *MemoryAdapter) GetOrderByReference(_ context.Context, reference string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if reference != "" && o.PaymentReference == reference {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) filterOrders(filter port.OrderFilter) []domain.Order {
	var out []domain.Order
	for _, o := range m.orders {
		if filter.UserID == "" || o.UserID == filter.UserID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryAdapter) ListOrders(_ context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.filterOrders(filter), filter.Offset, filter.Limit), nil
}

func (m *MemoryAdapter) CountOrders(_ context.Context, filter port.OrderFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterOrders(filter)), nil
}

// updateOrder applies fn when guard holds, mirroring a conditional UPDATE.
func (m *MemoryAdapter) updateOrder(id string, guard func(domain.Order) bool, fn func(*domain.Order), entry domain.AuditEntry) bool {
	o, ok := m.orders[id]
	if !ok || !guard(o) {
		return false
	}
	fn(&o)
	o.LastUpdatedAt = stamp(entry)
	o.Updates = withEntry(o.Updates, entry)
	m.orders[id] = o
	return true
}

func unpaid(o domain.Order) bool { return o.PaidAt == nil }

func (m *MemoryAdapter) RecordPaymentInitiated(_ context.Context, id, reference string, at time.Time, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateOrder(id, unpaid, func(o *domain.Order) {
		o.PaymentReference = reference
		o.PaymentInitiatedAt = &at
	}, entry), nil
}

func (m *MemoryAdapter) MarkPaid(_ context.Context, id string, paidAt time.Time, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateOrder(id, unpaid, func(o *domain.Order) {
		o.PaidAt = &paidAt
		if o.DeliveredAt == nil {
			o.Status = domain.OrderStatusPaid
		}
		o.Phase = domain.PhasePaidPendingFulfillment
	}, entry), nil
}

func (m *MemoryAdapter) ApplyStock(_ context.Context, id string, decrements []domain.StockDecrement, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	won := m.updateOrder(id, func(o domain.Order) bool {
		return o.Phase == domain.PhasePaidPendingFulfillment
	}, func(o *domain.Order) {
		o.Phase = domain.PhaseStockApplied
	}, entry)
	if !won {
		return false, nil
	}

	for _, d := range decrements {
		p, ok := m.products[d.ProductID]
		if !ok {
			continue
		}
		p.Quantity = max(p.Quantity-d.Quantity, 0)
		p.LastUpdatedAt = stamp(d.Entry)
		p.Updates = withEntry(p.Updates, d.Entry)
		m.products[p.ID] = p
	}
	return true, nil
}

func (m *MemoryAdapter) AdvancePhase(_ context.Context, id string, from []domain.Phase, to domain.Phase, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateOrder(id, func(o domain.Order) bool {
		for _, p := range from {
			if o.Phase == p {
				return true
			}
		}
		return false
	}, func(o *domain.Order) {
		o.Phase = to
	}, entry), nil
}

func (m *MemoryAdapter) MarkDelivered(_ context.Context, id string, entry domain.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateOrder(id, func(o domain.Order) bool {
		return o.DeliveredAt == nil
	}, func(o *domain.Order) {
		o.Status = domain.OrderStatusDelivered
		o.DeliveredAt = stamp(entry)
	}, entry), nil
}

func (m *MemoryAdapter) ListStalled(_ context.Context, phases []domain.Phase, before time.Time, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[domain.Phase]bool, len(phases))
	for _, p := range phases {
		wanted[p] = true
	}

	var out []domain.Order
	for _, o := range m.orders {
		if o.Paid() && wanted[o.Phase] && lastTouched(o).Before(before) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := out[i].Phase == domain.PhaseBackordered, out[j].Phase == domain.PhaseBackordered
		if bi != bj {
			return bj
		}
		ti, tj := lastTouched(out[i]), lastTouched(out[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, 0, limit), nil
}

func lastTouched(o domain.Order) time.Time {
	if o.LastUpdatedAt != nil {
		return *o.LastUpdatedAt
	}
	return o.CreatedAt
}

// Addresses

func (m *MemoryAdapter) CreateAddress(_ context.Context, address domain.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[address.ID] = cloneAddress(address)
	return nil
}

func (m *MemoryAdapter) GetAddress(_ context.Context, id string) (*domain.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.addresses[id]
	if !ok {
		return nil, nil
	}
	a = cloneAddress(a)
	return &a, nil
}

func (m *MemoryAdapter) FindAddressByCoordinates(_ context.Context, userID string, coordinates domain.Coordinates) (*domain.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.addresses {
		if a.UserID == userID && a.Coordinates == coordinates {
			a = cloneAddress(a)
			return &a, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) userAddresses(userID string) []domain.Address {
	var out []domain.Address
	for _, a := range m.addresses {
		if a.UserID == userID {
			out = append(out, cloneAddress(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryAdapter) ListAddresses(_ context.Context, userID string, offset, limit int) ([]domain.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.userAddresses(userID), offset, limit), nil
}

func (m *MemoryAdapter) CountAddresses(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.userAddresses(userID)), nil
}

func (m *MemoryAdapter) UpdateAddress(_ context.Context, address domain.Address, entry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.addresses[address.ID]
	if !ok {
		return nil
	}
	a.Address, a.Coordinates = address.Address, address.Coordinates
	a.LastUpdatedAt = stamp(entry)
	a.Updates = withEntry(a.Updates, entry)
	m.addresses[a.ID] = a
	return nil
}

func (m *MemoryAdapter) DeleteAddress(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.addresses[id]; !ok {
		return false, nil
	}
	delete(m.addresses, id)
	return true, nil
}

// Session cache and locks

func (m *MemoryAdapter) SetCheckoutSession(_ context.Context, orderID string, session domain.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[orderID] = session
	return nil
}

func (m *MemoryAdapter) GetCheckoutSession(_ context.Context, orderID string) (*domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[orderID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryAdapter) GetCheckoutSessions(_ context.Context, orderIDs []string) (map[string]domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.CheckoutSession, len(orderIDs))
	for _, id := range orderIDs {
		if s, ok := m.sessions[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (m *MemoryAdapter) HasCheckoutSession(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[orderID]
	return ok, nil
}

func (m *MemoryAdapter) DeleteCheckoutSession(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, orderID)
	return nil
}

func (m *MemoryAdapter) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.locks[key]; ok && now.Before(l.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[key] = memoryLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryAdapter) ReleaseLock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.locks[key]; ok && l.token == token {
		delete(m.locks, key)
	}
	return nil
}
