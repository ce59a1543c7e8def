package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestPostgresStores прогоняет тот же контракт на настоящем PostgreSQL.
// Требует Docker; пропускается с -short.
func TestPostgresStores(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("nodeflow_test"),
		postgres.WithUsername("nodeflow"),
		postgres.WithPassword("nodeflow"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runStoreContract(t, func(t *testing.T) *Stores {
		// Каждый подтест начинает с чистой схемы
		_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS schedules, execution_steps, executions, workflows CASCADE`)
		require.NoError(t, err)
		require.NoError(t, Migrate(ctx, pool))
		return NewPostgres(pool)
	})
}
