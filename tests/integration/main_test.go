//go:build integration

package integration

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/resurgence-rp/radiorelay/internal/schedule/pgstore"
	"github.com/resurgence-rp/radiorelay/internal/testutil"
)

var (
	testDB    *pgxpool.Pool
	testStore *pgstore.Store
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}

	testDB, err = pgxpool.New(ctx, container.ConnectionString)
	if err != nil {
		log.Fatalf("connect to test database: %v", err)
	}

	testStore, err = pgstore.New(ctx, testDB)
	if err != nil {
		log.Fatalf("create store: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("terminate container: %v", err)
	}
	os.Exit(code)
}

// resetSchedule clears the deletion_schedule table between tests.
func resetSchedule(t *testing.T) {
	t.Helper()
	if _, err := testDB.Exec(context.Background(), "TRUNCATE deletion_schedule"); err != nil {
		t.Fatalf("truncate deletion_schedule: %v", err)
	}
}
