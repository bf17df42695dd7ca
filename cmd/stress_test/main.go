package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/adapter/events"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const (
	totalBuyers  = 50
	poolSize     = 20
	replays      = 5
	initialStock = 100
)

// Every buyer pays for one credential. Each payment is confirmed replays times
// concurrently, the way a webhook, a callback and a verify poll race in
// production. Exactly one confirmation per order may win, and no credential
// may be handed to more than one buyer.
func main() {
	driver := flag.String("driver", "memory", "Storage driver: memory or mysql")
	dsn := flag.String("dsn", "root:root@tcp(localhost:3306)/storefront?parseTime=true", "MySQL DSN")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address")
	flag.Parse()

	ctx := context.Background()

	repo, cache, cleanup := connect(ctx, *driver, *dsn, *redisAddr)
	defer cleanup()

	logger := logging.New("stress", "warn", os.Stderr)
	reconciler := service.NewReconciler(repo, cache, events.NopPublisher{},
		metrics.NewServerMetrics("stress").Reconciliation(), logger)
	carts := service.NewCartService(repo, repo, logger)
	orders := service.NewOrderService(repo, repo, cache, events.NopPublisher{}, logger)

	product := seedProduct(ctx, repo)
	log.Printf("seeded product %s: stock %d, pool %d", product.ID, initialStock, poolSize)

	// Every buyer checks out one unit
	orderIDs := make([]string, totalBuyers)
	for i := range orderIDs {
		caller := domain.Caller{UserID: fmt.Sprintf("buyer-%d", i), Role: domain.RoleUser}
		if _, _, err := carts.AddItem(ctx, caller, service.CartItemInput{ProductID: product.ID, Quantity: 1}); err != nil {
			log.Fatalf("add to cart for %s: %v", caller.UserID, err)
		}
		view, err := orders.CreateOrder(ctx, caller, nil)
		if err != nil {
			log.Fatalf("create order for %s: %v", caller.UserID, err)
		}
		orderIDs[i] = view.ID
	}

	// Counters
	var (
		applied    atomic.Int32
		duplicates atomic.Int32
		failed     atomic.Int32
	)

	// Race every confirmation
	var wg sync.WaitGroup
	start := time.Now()
	paidAt := start.UTC()

	for _, orderID := range orderIDs {
		for r := 0; r < replays; r++ {
			wg.Add(1)
			go func(orderID string) {
				defer wg.Done()

				out, err := reconciler.ApplyPayment(ctx, orderID, paidAt, service.SourceWebhook)
				switch {
				case err != nil:
					failed.Add(1)
					log.Printf("apply payment %s: %v", orderID, err)
				case out.Applied:
					applied.Add(1)
				default:
					duplicates.Add(1)
				}
			}(orderID)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	assigned, err := repo.ListCredentials(ctx, port.CredentialFilter{ProductID: product.ID})
	if err != nil {
		log.Fatalf("list credentials: %v", err)
	}
	owners := make(map[string]string)
	exclusive := true
	for _, c := range assigned {
		if !c.Assigned() {
			continue
		}
		if prev, ok := owners[c.CartLineID]; ok && prev != c.ID {
			exclusive = false
		}
		owners[c.CartLineID] = c.ID
	}

	stock := -1
	if p, err := repo.GetProduct(ctx, product.ID); err == nil && p != nil {
		stock = p.Quantity
	}

	backordered := 0
	for _, id := range orderIDs {
		o, err := repo.GetOrder(ctx, id)
		if err == nil && o != nil && o.Phase == domain.PhaseBackordered {
			backordered++
		}
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:            %s\n", *driver)
	fmt.Printf("Orders:            %d\n", totalBuyers)
	fmt.Printf("Confirmations:     %d\n", totalBuyers*replays)
	fmt.Printf("Applied:           %d\n", applied.Load())
	fmt.Printf("Duplicates:        %d\n", duplicates.Load())
	fmt.Printf("Errors:            %d\n", failed.Load())
	fmt.Printf("Assigned creds:    %d\n", len(owners))
	fmt.Printf("Backordered:       %d\n", backordered)
	fmt.Printf("Final stock:       %d\n", stock)
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	pass := true
	check := func(ok bool, format string, args ...any) {
		if ok {
			fmt.Println("PASS: " + fmt.Sprintf(format, args...))
			return
		}
		pass = false
		fmt.Println("FAIL: " + fmt.Sprintf(format, args...))
	}

	check(applied.Load() == totalBuyers, "each order applied exactly once (%d/%d)", applied.Load(), totalBuyers)
	check(stock == initialStock-totalBuyers, "stock decremented once per order (%d)", stock)
	check(len(owners) == poolSize, "whole pool assigned (%d/%d)", len(owners), poolSize)
	check(exclusive, "no cart line holds two credentials")
	check(backordered == totalBuyers-poolSize, "remaining orders backordered (%d)", backordered)

	if !pass {
		os.Exit(1)
	}
}

func connect(ctx context.Context, driver, dsn, redisAddr string) (port.DatabaseRepository, port.CacheRepository, func()) {
	if driver == "memory" {
		memory := storage.NewMemoryAdapter()
		return memory, memory, func() {}
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}

	return mysqlAdapter, storage.NewRedisAdapter(rdb), func() {
		rdb.Close()
		db.Close()
	}
}

func seedProduct(ctx context.Context, repo port.DatabaseRepository) domain.Product {
	now := time.Now().UTC()
	p := domain.Product{
		ID:        uuid.NewString(),
		Name:      "stress-credential",
		Type:      domain.ProductTypeCredential,
		Quantity:  initialStock,
		Amount:    domain.NewAmount(10),
		Image:     "https://cdn.example.com/stress.png",
		CreatedBy: "stress",
		CreatedAt: now,
		Updates:   []domain.AuditEntry{domain.NewAuditEntry("Created", now)},
	}
	creds := make([]domain.Credential, poolSize)
	for i := range creds {
		creds[i] = domain.Credential{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			Email:     fmt.Sprintf("stress-%d-%s@example.com", i, p.ID[:8]),
			Secret:    "stress-pass",
			CreatedBy: "stress",
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
			Updates:   []domain.AuditEntry{},
		}
	}
	if err := repo.CreateProduct(ctx, p, creds); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}
	return p
}
