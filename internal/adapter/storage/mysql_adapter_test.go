package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func getMySQLAdapter(t *testing.T) *MySQLAdapter {
	db := getMySQLDB(t)
	t.Cleanup(func() { db.Close() })

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return adapter
}

func TestMySQLAdapter_Contract(t *testing.T) {
	runRepositoryContract(t, getMySQLAdapter(t))
}

func TestMySQLAdapter_MigrateIsRepeatable(t *testing.T) {
	adapter := getMySQLAdapter(t)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestMySQLAdapter_AuditHistoryAppends(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, adapter, domain.ProductTypeGift, 3, 0)
	p.Name = "renamed"
	p.Quantity = 7
	if err := adapter.UpdateProduct(ctx, p, entryAt("Renamed")); err != nil {
		t.Fatalf("UpdateProduct failed: %v", err)
	}
	if err := adapter.UpdateProduct(ctx, p, entryAt("Touched")); err != nil {
		t.Fatalf("UpdateProduct failed: %v", err)
	}

	got, err := adapter.GetProduct(ctx, p.ID)
	if err != nil || got == nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if got.Name != "renamed" || got.Quantity != 7 {
		t.Errorf("update not applied: %+v", got)
	}
	if len(got.Updates) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(got.Updates))
	}
	if got.Updates[1].Description != "Renamed" || got.Updates[2].Description != "Touched" {
		t.Errorf("audit entries out of order: %+v", got.Updates)
	}
	if got.LastUpdatedAt == nil {
		t.Error("lastUpdatedAt must be set")
	}
}

func TestMySQLAdapter_ContactInformationRoundTrip(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()

	user := uuid.NewString()
	p := seedProduct(t, adapter, domain.ProductTypeGift, 3, 0)
	line := seedLine(t, adapter, user, p, 1)

	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    user,
		CartItems: []string{line.ID},
		ContactInformation: &domain.ContactInformation{
			SenderName:          "Ada",
			ReceiverName:        "Grace",
			ReceiverAddress:     "12 Marina, Lagos",
			ReceiverPhoneNumber: "+2348012345678",
			Longitude:           3.39,
			Latitude:            6.45,
		},
		Status:    domain.OrderStatusPending,
		Phase:     domain.PhaseAwaitingPayment,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Updates:   []domain.AuditEntry{},
	}
	if err := adapter.CreateOrder(ctx, order, entryAt("Checked out")); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	got, err := adapter.GetOrder(ctx, order.ID)
	if err != nil || got == nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.ContactInformation == nil || *got.ContactInformation != *order.ContactInformation {
		t.Errorf("contact information mismatch: %+v", got.ContactInformation)
	}

	if ok, err := adapter.RecordPaymentInitiated(ctx, order.ID, "ref-"+order.ID, time.Now().UTC(), entryAt("Initiated")); err != nil || !ok {
		t.Fatalf("RecordPaymentInitiated: ok=%v err=%v", ok, err)
	}
	byRef, err := adapter.GetOrderByReference(ctx, "ref-"+order.ID)
	if err != nil || byRef == nil || byRef.ID != order.ID {
		t.Errorf("GetOrderByReference failed: %v %+v", err, byRef)
	}
}
