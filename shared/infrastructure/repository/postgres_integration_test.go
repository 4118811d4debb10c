//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"reportfetcher/shared/domain/entity/download"
	"reportfetcher/shared/domain/entity/report"
	"reportfetcher/shared/infrastructure/database"
	"reportfetcher/shared/infrastructure/observability"
)

func TestPostgresRepositories(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("reportfetcher"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	obs := observability.NewDiscard()
	db, err := database.NewDatabaseFromDSN(database.DialectPostgres, dsn, obs)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos, err := NewRepositories(db, obs)
	require.NoError(t, err)

	r := seedReport(t, repos, "2001", "5", "https://ipoipo.cn/files/x.zip")
	require.NoError(t, r.MarkFailed())
	require.NoError(t, repos.Report().Update(ctx, r))

	reset, err := repos.Report().ResetFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reset, 1)

	d := download.NewDownload("2001", "https://ipoipo.cn/files/x.zip", "x.zip", "/tmp/x.zip", 3)
	require.NoError(t, d.Start())
	require.NoError(t, repos.Download().Create(ctx, d))
	assert.NotZero(t, d.ID)

	counts, err := repos.Report().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[report.StatusReady])
}
