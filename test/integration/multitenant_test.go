package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotations/rotations/internal/domain/rotation"
	"github.com/rotations/rotations/internal/platform/db"
	"github.com/rotations/rotations/migrations"
)

func TestProgramIsolation(t *testing.T) {
	ctx := context.Background()
	a := newEnv(t, ctx, "medicina", rotation.Options{})
	b := newEnv(t, ctx, "enfermeria", rotation.Options{})

	p := seedPlacement(t, ctx, a, 5)
	a.run(t, ctx, func(ctx context.Context) error {
		_, err := a.scheduler.Create(ctx, p.request(june(1), june(30)))
		return err
	})

	b.run(t, ctx, func(ctx context.Context) error {
		var n int
		require.NoError(t, db.ConnFromContext(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assignments`).Scan(&n))
		assert.Zero(t, n)

		_, err := b.scheduler.ListActiveByStudent(ctx, p.student)
		assert.ErrorIs(t, err, rotation.ErrEntityNotFound)
		return nil
	})
}

func TestMigrator_StatusAfterCreate(t *testing.T) {
	ctx := context.Background()
	tenantID := createProgram(t, ctx, "status")

	statuses, err := db.NewMigratorFS(globalPool, migrations.FS).Status(ctx, db.SchemaName(tenantID))
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %s not applied", s.Name)
	}

	n, err := db.NewMigratorFS(globalPool, migrations.FS).Up(ctx, db.SchemaName(tenantID))
	require.NoError(t, err)
	assert.Zero(t, n)
}
