package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// runRepositoryContract exercises the guarantees the reconciler relies on.
// Both adapters must pass it unchanged.
func runRepositoryContract(t *testing.T, repo port.DatabaseRepository) {
	t.Run("CreateOrderTagsLines", func(t *testing.T) { testCreateOrderTagsLines(t, repo) })
	t.Run("CreateOrderRejectsTaggedLines", func(t *testing.T) { testCreateOrderRejectsTaggedLines(t, repo) })
	t.Run("MarkPaidOnce", func(t *testing.T) { testMarkPaidOnce(t, repo) })
	t.Run("MarkPaidKeepsDelivered", func(t *testing.T) { testMarkPaidKeepsDelivered(t, repo) })
	t.Run("ApplyStockOnce", func(t *testing.T) { testApplyStockOnce(t, repo) })
	t.Run("FulfillShortfall", func(t *testing.T) { testFulfillShortfall(t, repo) })
	t.Run("FulfillExclusive", func(t *testing.T) { testFulfillExclusive(t, repo) })
	t.Run("ListStalled", func(t *testing.T) { testListStalled(t, repo) })
	t.Run("ListStalledBackorderedLast", func(t *testing.T) { testListStalledBackorderedLast(t, repo) })
	t.Run("DeleteAssignedCredential", func(t *testing.T) { testDeleteAssignedCredential(t, repo) })
}

func entryAt(desc string) domain.AuditEntry {
	return domain.NewAuditEntry(desc, time.Now().UTC().Truncate(time.Millisecond))
}

func seedProduct(t *testing.T, repo port.DatabaseRepository, typ domain.ProductType, quantity, pool int) domain.Product {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := domain.Product{
		ID:        uuid.NewString(),
		Name:      "contract-" + string(typ),
		Type:      typ,
		Quantity:  quantity,
		Amount:    domain.NewAmount(10),
		Image:     "https://cdn.example.com/p.png",
		CreatedBy: "admin",
		CreatedAt: now,
		Updates:   []domain.AuditEntry{domain.NewAuditEntry("Created", now)},
	}
	creds := make([]domain.Credential, pool)
	for i := range creds {
		creds[i] = domain.Credential{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			Email:     uuid.NewString() + "@example.com",
			Secret:    "secret-pass",
			CreatedBy: "admin",
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
			Updates:   []domain.AuditEntry{},
		}
	}
	if err := repo.CreateProduct(context.Background(), p, creds); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	return p
}

func seedLine(t *testing.T, repo port.DatabaseRepository, userID string, p domain.Product, quantity int) domain.CartLine {
	t.Helper()
	l := domain.CartLine{
		ID:        uuid.NewString(),
		UserID:    userID,
		Product:   domain.SnapshotOf(p),
		Quantity:  quantity,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Updates:   []domain.AuditEntry{},
	}
	if err := repo.CreateLine(context.Background(), l); err != nil {
		t.Fatalf("CreateLine failed: %v", err)
	}
	return l
}

func seedOrder(t *testing.T, repo port.DatabaseRepository, userID string, lines ...domain.CartLine) domain.Order {
	t.Helper()
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ID
	}
	o := domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		CartItems: ids,
		Status:    domain.OrderStatusPending,
		Phase:     domain.PhaseAwaitingPayment,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Updates:   []domain.AuditEntry{},
	}
	if err := repo.CreateOrder(context.Background(), o, entryAt("Checked out")); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return o
}

func testCreateOrderTagsLines(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeGift, 5, 0)
	a := seedLine(t, repo, user, p, 1)
	b := seedLine(t, repo, user, p, 2)

	o := seedOrder(t, repo, user, a, b)

	active, err := repo.ListActiveLines(ctx, user)
	if err != nil {
		t.Fatalf("ListActiveLines failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected empty cart after checkout, got %d lines", len(active))
	}

	lines, err := repo.ListLines(ctx, []string{b.ID, a.ID})
	if err != nil {
		t.Fatalf("ListLines failed: %v", err)
	}
	if len(lines) != 2 || lines[0].ID != b.ID || lines[1].ID != a.ID {
		t.Fatalf("ListLines did not keep requested order: %+v", lines)
	}
	for _, l := range lines {
		if l.OrderID != o.ID {
			t.Errorf("line %s tagged %q, want %q", l.ID, l.OrderID, o.ID)
		}
		if len(l.Updates) != 1 {
			t.Errorf("line %s expected 1 audit entry, got %d", l.ID, len(l.Updates))
		}
	}

	got, err := repo.GetOrder(ctx, o.ID)
	if err != nil || got == nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if len(got.CartItems) != 2 || got.Phase != domain.PhaseAwaitingPayment {
		t.Errorf("unexpected order: %+v", got)
	}
}

func testCreateOrderRejectsTaggedLines(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeGift, 5, 0)
	a := seedLine(t, repo, user, p, 1)
	seedOrder(t, repo, user, a)

	b := seedLine(t, repo, user, p, 1)
	second := domain.Order{
		ID:        uuid.NewString(),
		UserID:    user,
		CartItems: []string{a.ID, b.ID},
		Status:    domain.OrderStatusPending,
		Phase:     domain.PhaseAwaitingPayment,
		CreatedAt: time.Now().UTC(),
		Updates:   []domain.AuditEntry{},
	}
	err := repo.CreateOrder(ctx, second, entryAt("Checked out"))
	if !errors.Is(err, port.ErrCartChanged) {
		t.Fatalf("expected ErrCartChanged, got %v", err)
	}

	if o, _ := repo.GetOrder(ctx, second.ID); o != nil {
		t.Error("rejected order must not be stored")
	}
	line, _ := repo.GetLine(ctx, b.ID)
	if line == nil || !line.Active() {
		t.Error("untouched line must stay in the cart")
	}
}

func testMarkPaidOnce(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeGift, 5, 0)
	o := seedOrder(t, repo, user, seedLine(t, repo, user, p, 1))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkPaid(ctx, o.ID, time.Now().UTC(), entryAt("Paid"))
			if err != nil {
				t.Errorf("MarkPaid failed: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one MarkPaid winner, got %d", wins.Load())
	}

	got, _ := repo.GetOrder(ctx, o.ID)
	if got.Status != domain.OrderStatusPaid || got.Phase != domain.PhasePaidPendingFulfillment {
		t.Errorf("unexpected state after payment: %s/%s", got.Status, got.Phase)
	}

	ok, err := repo.RecordPaymentInitiated(ctx, o.ID, "late-ref", time.Now().UTC(), entryAt("Initiated"))
	if err != nil || ok {
		t.Errorf("RecordPaymentInitiated on a paid order: ok=%v err=%v", ok, err)
	}
}

func testMarkPaidKeepsDelivered(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeGift, 5, 0)
	o := seedOrder(t, repo, user, seedLine(t, repo, user, p, 1))

	if _, err := repo.MarkDelivered(ctx, o.ID, entryAt("Delivered")); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
	ok, err := repo.MarkPaid(ctx, o.ID, time.Now().UTC(), entryAt("Paid"))
	if err != nil || !ok {
		t.Fatalf("MarkPaid: ok=%v err=%v", ok, err)
	}

	got, _ := repo.GetOrder(ctx, o.ID)
	if got.Status != domain.OrderStatusDelivered {
		t.Errorf("payment must not demote a delivered order, got %s", got.Status)
	}
	if !got.Paid() || got.Phase != domain.PhasePaidPendingFulfillment {
		t.Errorf("unexpected payment state: paid=%v phase=%s", got.Paid(), got.Phase)
	}
}

func testApplyStockOnce(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeGift, 5, 0)
	o := seedOrder(t, repo, user, seedLine(t, repo, user, p, 2))

	decrements := []domain.StockDecrement{{ProductID: p.ID, Quantity: 2, Entry: entryAt("Sold 2")}}

	ok, err := repo.ApplyStock(ctx, o.ID, decrements, entryAt("Stock applied"))
	if err != nil || ok {
		t.Fatalf("ApplyStock before payment: ok=%v err=%v", ok, err)
	}

	if _, err := repo.MarkPaid(ctx, o.ID, time.Now().UTC(), entryAt("Paid")); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := repo.ApplyStock(ctx, o.ID, decrements, entryAt("Stock applied"))
		if err != nil {
			t.Fatalf("ApplyStock failed: %v", err)
		}
		if ok != (i == 0) {
			t.Errorf("ApplyStock attempt %d: ok=%v", i, ok)
		}
	}

	got, _ := repo.GetProduct(ctx, p.ID)
	if got.Quantity != 3 {
		t.Errorf("expected stock 3, got %d", got.Quantity)
	}

	big := []domain.StockDecrement{{ProductID: p.ID, Quantity: 10, Entry: entryAt("Sold 10")}}
	o2 := seedOrder(t, repo, user, seedLine(t, repo, user, p, 10))
	repo.MarkPaid(ctx, o2.ID, time.Now().UTC(), entryAt("Paid"))
	if _, err := repo.ApplyStock(ctx, o2.ID, big, entryAt("Stock applied")); err != nil {
		t.Fatalf("ApplyStock failed: %v", err)
	}
	got, _ = repo.GetProduct(ctx, p.ID)
	if got.Quantity != 0 {
		t.Errorf("stock must clamp at 0, got %d", got.Quantity)
	}
}

func testFulfillShortfall(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeCredential, 1, 1)
	line := seedLine(t, repo, user, p, 2)
	o := seedOrder(t, repo, user, line)
	line.OrderID = o.ID

	ok, err := repo.FulfillCredentialLine(ctx, line, user, entryAt("Delivered"))
	if err != nil {
		t.Fatalf("FulfillCredentialLine failed: %v", err)
	}
	if ok {
		t.Fatal("expected shortfall")
	}

	n, _ := repo.CountCredentials(ctx, port.CredentialFilter{ProductID: p.ID, Unassigned: true})
	if n != 1 {
		t.Errorf("shortfall must not assign anything, %d still free", n)
	}
	got, _ := repo.GetLine(ctx, line.ID)
	if got.Delivered() {
		t.Error("line must stay undelivered on shortfall")
	}

	if _, err := repo.AddCredentials(ctx, p.ID, []domain.Credential{{
		ID: uuid.NewString(), ProductID: p.ID, Email: "extra@example.com", Secret: "secret-pass",
		CreatedBy: "admin", CreatedAt: time.Now().UTC(), Updates: []domain.AuditEntry{},
	}}, entryAt("Restocked")); err != nil {
		t.Fatalf("AddCredentials failed: %v", err)
	}

	ok, err = repo.FulfillCredentialLine(ctx, line, user, entryAt("Delivered"))
	if err != nil || !ok {
		t.Fatalf("FulfillCredentialLine after restock: ok=%v err=%v", ok, err)
	}
	mine, _ := repo.ListCredentials(ctx, port.CredentialFilter{AssignedTo: user, Limit: 10})
	if len(mine) != 2 {
		t.Errorf("expected 2 assigned credentials, got %d", len(mine))
	}
	for _, c := range mine {
		if c.OrderID != o.ID || c.CartLineID != line.ID {
			t.Errorf("credential %s not bound to its line: %+v", c.ID, c)
		}
	}

	ok, err = repo.FulfillCredentialLine(ctx, line, user, entryAt("Delivered"))
	if err != nil || !ok {
		t.Errorf("repeat fulfillment must report done: ok=%v err=%v", ok, err)
	}
	mine, _ = repo.ListCredentials(ctx, port.CredentialFilter{AssignedTo: user, Limit: 10})
	if len(mine) != 2 {
		t.Errorf("repeat fulfillment assigned more credentials: %d", len(mine))
	}
}

func testFulfillExclusive(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	const buyers = 8
	const pool = 5
	p := seedProduct(t, repo, domain.ProductTypeCredential, pool, pool)

	lines := make([]domain.CartLine, buyers)
	for i := range lines {
		user := uuid.NewString()
		lines[i] = seedLine(t, repo, user, p, 1)
		lines[i].OrderID = seedOrder(t, repo, user, lines[i]).ID
	}

	var delivered atomic.Int32
	var wg sync.WaitGroup
	for _, l := range lines {
		wg.Add(1)
		go func(l domain.CartLine) {
			defer wg.Done()
			ok, err := repo.FulfillCredentialLine(ctx, l, l.UserID, entryAt("Delivered"))
			if err != nil {
				t.Errorf("FulfillCredentialLine failed: %v", err)
				return
			}
			if ok {
				delivered.Add(1)
			}
		}(l)
	}
	wg.Wait()

	if delivered.Load() > pool {
		t.Fatalf("delivered %d lines from a pool of %d", delivered.Load(), pool)
	}

	all, _ := repo.ListCredentials(ctx, port.CredentialFilter{ProductID: p.ID, Limit: 100})
	owners := map[string]string{}
	assigned := 0
	for _, c := range all {
		if !c.Assigned() {
			continue
		}
		assigned++
		if prev, seen := owners[c.CartLineID]; seen && prev != c.AssignedTo {
			t.Errorf("line %s holds credentials of two users", c.CartLineID)
		}
		owners[c.CartLineID] = c.AssignedTo
	}
	if assigned != int(delivered.Load()) {
		t.Errorf("assigned %d credentials for %d delivered lines", assigned, delivered.Load())
	}
}

func testListStalled(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeGift, 5, 0)
	paid := seedOrder(t, repo, user, seedLine(t, repo, user, p, 1))
	unpaid := seedOrder(t, repo, user, seedLine(t, repo, user, p, 1))

	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	if _, err := repo.MarkPaid(ctx, paid.ID, past, domain.NewAuditEntry("Paid", past)); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}

	stalled, err := repo.ListStalled(ctx, domain.ResumablePhases, time.Now().UTC().Add(-time.Minute), 1000)
	if err != nil {
		t.Fatalf("ListStalled failed: %v", err)
	}
	found := map[string]bool{}
	for _, o := range stalled {
		found[o.ID] = true
	}
	if !found[paid.ID] {
		t.Error("paid order idle past the grace must be listed")
	}
	if found[unpaid.ID] {
		t.Error("unpaid order must never be listed")
	}

	recent, _ := repo.ListStalled(ctx, domain.ResumablePhases, past.Add(-time.Minute), 1000)
	for _, o := range recent {
		if o.ID == paid.ID {
			t.Error("order touched after the cutoff must not be listed")
		}
	}
}

func testListStalledBackorderedLast(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeGift, 5, 0)
	waiting := seedOrder(t, repo, user, seedLine(t, repo, user, p, 1))
	crashed := seedOrder(t, repo, user, seedLine(t, repo, user, p, 1))

	older := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Millisecond)
	if _, err := repo.MarkPaid(ctx, waiting.ID, older, domain.NewAuditEntry("Paid", older)); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if _, err := repo.ApplyStock(ctx, waiting.ID, nil, domain.NewAuditEntry("Stock", older)); err != nil {
		t.Fatalf("ApplyStock failed: %v", err)
	}
	from := []domain.Phase{domain.PhaseStockApplied}
	if _, err := repo.AdvancePhase(ctx, waiting.ID, from, domain.PhaseBackordered, domain.NewAuditEntry("Short", older)); err != nil {
		t.Fatalf("AdvancePhase failed: %v", err)
	}

	newer := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	if _, err := repo.MarkPaid(ctx, crashed.ID, newer, domain.NewAuditEntry("Paid", newer)); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}

	stalled, err := repo.ListStalled(ctx, domain.ResumablePhases, time.Now().UTC().Add(-time.Minute), 1000)
	if err != nil {
		t.Fatalf("ListStalled failed: %v", err)
	}
	pos := map[string]int{}
	seenBackordered := false
	for i, o := range stalled {
		pos[o.ID] = i
		if o.Phase == domain.PhaseBackordered {
			seenBackordered = true
		} else if seenBackordered {
			t.Errorf("order %s in %s listed after a backordered order", o.ID, o.Phase)
		}
	}
	wi, okW := pos[waiting.ID]
	ci, okC := pos[crashed.ID]
	if !okW || !okC {
		t.Fatalf("both orders must be listed: waiting=%v crashed=%v", okW, okC)
	}
	if ci > wi {
		t.Errorf("interrupted order listed at %d, after the older backordered one at %d", ci, wi)
	}
}

func testDeleteAssignedCredential(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	user := uuid.NewString()
	p := seedProduct(t, repo, domain.ProductTypeCredential, 2, 2)
	line := seedLine(t, repo, user, p, 1)
	line.OrderID = seedOrder(t, repo, user, line).ID
	if ok, err := repo.FulfillCredentialLine(ctx, line, user, entryAt("Delivered")); err != nil || !ok {
		t.Fatalf("FulfillCredentialLine: ok=%v err=%v", ok, err)
	}

	mine, _ := repo.ListCredentials(ctx, port.CredentialFilter{AssignedTo: user, Limit: 1})
	free, _ := repo.ListCredentials(ctx, port.CredentialFilter{ProductID: p.ID, Unassigned: true, Limit: 1})
	if len(mine) != 1 || len(free) != 1 {
		t.Fatalf("unexpected pool state: mine=%d free=%d", len(mine), len(free))
	}

	if ok, _ := repo.DeleteCredential(ctx, mine[0].ID, entryAt("Removed")); ok {
		t.Error("assigned credential must not be deletable")
	}
	if ok, _ := repo.DeleteCredential(ctx, free[0].ID, entryAt("Removed")); !ok {
		t.Error("free credential must be deletable")
	}
	got, _ := repo.GetProduct(ctx, p.ID)
	if got.Quantity != 1 {
		t.Errorf("expected stock 1 after delete, got %d", got.Quantity)
	}
}
