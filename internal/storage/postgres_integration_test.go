//go:build integration

package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

func init() {
	storeBackends = append(storeBackends, storeFactory{name: "postgres", open: openPostgres})
}

// openPostgres shares one container across tests and truncates between them.
func openPostgres(t *testing.T) Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pgOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("phenbot_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			pgErr = err
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			pgErr = err
			return
		}
		port, err := container.MappedPort(ctx, "5432")
		if err != nil {
			pgErr = err
			return
		}
		pgDSN = fmt.Sprintf("postgres://test:test@%s:%s/phenbot_test?sslmode=disable", host, port.Port())
	})
	require.NoError(t, pgErr)

	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: "postgres", DSN: pgDSN, MaxOpenConns: 5})
	require.NoError(t, err)

	sqlStore := s.(*SQLStore)
	_, err = sqlStore.db.ExecContext(ctx, `TRUNCATE users, documents, chunks, history, flashcards`)
	require.NoError(t, err)

	return s
}
