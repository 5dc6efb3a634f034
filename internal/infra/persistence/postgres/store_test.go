package postgres

import (
	"context"
	"os"
	"testing"

	"permitdesk/internal/infra/persistence/storetest"
	"permitdesk/pkg/domain"
)

// Contract coverage requires a reachable database; set
// PERMITDESK_TEST_POSTGRES_DSN to run against a scratch instance.
func TestContract(t *testing.T) {
	dsn := os.Getenv("PERMITDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PERMITDESK_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) domain.EntityStore {
		store, err := NewStore(context.Background(), dsn)
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() {
			_, _ = store.db.Exec(`DELETE FROM entities`)
			_ = store.Close()
		})
		return store
	})
}
