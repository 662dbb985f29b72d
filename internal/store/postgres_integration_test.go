package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

var (
	testPoolOnce sync.Once
	testPool     *pgxpool.Pool
	testPoolErr  error
)

func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testPoolOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		storeURL := os.Getenv("STORE_URL")
		if storeURL == "" {
			testPoolErr = fmt.Errorf("STORE_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(storeURL)
		if err != nil {
			testPoolErr = err
			return
		}

		testPool, testPoolErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testPoolErr != nil {
			return
		}
		testPoolErr = testPool.Ping(context.Background())
	})

	if testPoolErr != nil {
		t.Skipf("skipping integration test: %v", testPoolErr)
	}
	return testPool
}

// Facts are never deleted, so isolation comes from a unique session marker
// and a short retention instead of cleanup.
func TestPostgresStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pgStore := NewPostgresStore(integrationPool(t))
	marker := uuid.NewString()

	attrs := map[string]string{
		"space":      "integration-test",
		"type":       "confirmation",
		"session_id": marker,
	}

	first, err := pgStore.Create(ctx, attrs, []byte(`{"participant":"mentor-1"}`), 120)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if first.Key == "" || first.TxRef == "" {
		t.Fatalf("expected key and tx ref, got %+v", first)
	}

	if _, err := pgStore.Create(ctx, attrs, []byte(`{"participant":"learner-1"}`), 120); err != nil {
		t.Fatalf("second Create: %v", err)
	}

	records, err := pgStore.Query(ctx, attrs)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Key != first.Key {
		t.Fatalf("expected creation order, got first key %s", records[0].Key)
	}
	if records[0].Attributes["session_id"] != marker {
		t.Fatalf("attributes did not round-trip: %+v", records[0].Attributes)
	}
}

func TestPostgresStoreQueryIgnoresOtherSessions(t *testing.T) {
	ctx := context.Background()
	pgStore := NewPostgresStore(integrationPool(t))
	marker := uuid.NewString()

	if _, err := pgStore.Create(ctx, map[string]string{
		"space":      "integration-test",
		"type":       "rejection",
		"session_id": marker,
	}, []byte(`{}`), 120); err != nil {
		t.Fatalf("Create: %v", err)
	}

	records, err := pgStore.Query(ctx, map[string]string{
		"space":      "integration-test",
		"type":       "confirmation",
		"session_id": marker,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no confirmation records, got %d", len(records))
	}
}
