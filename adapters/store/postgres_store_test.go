package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Set TAPTHAT_TEST_DATABASE_URL to run against a live PostgreSQL.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TAPTHAT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TAPTHAT_TEST_DATABASE_URL not set")
	}

	s, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runBridgeStoreContract(t, s)

	t.Run("subscriptions", func(t *testing.T) {
		runSubscriptionStoreContract(t, s)
	})
}
