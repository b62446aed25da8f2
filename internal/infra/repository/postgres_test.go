package repository_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// audit_logsのactionを拾うため
type auditRow struct {
	Action     string
	ResourceID int64
}

// TEST_DATABASE_DSN が無ければskip
func postgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	return dsn
}

// 画像割り当ての更新と監査ログが同じtxでPostgreSQLに残る
func TestPostgres_AssignImage_AuditLogRecorded(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()

	gdb, err := db.Connect(dsn, false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	products := infraRepo.NewProductGormRepository(gdb)
	p, err := products.Create(ctx, model.Product{
		Name:  "PG-Audit-" + time.Now().Format("20060102-150405.000000000"),
		Price: "K100",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = products.Delete(ctx, p.ID) })

	img := "https://cdn.example/products/pg-audit.jpg"
	err = infraRepo.NewTxManagerGorm(gdb).WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Products().Update(ctx, p.ID, model.ProductPatch{Image: &img}); err != nil {
			return err
		}
		return r.AuditLogs().Create(ctx, model.AuditLog{
			Action:       model.AuditActionAssignImage,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   p.ID,
			CreatedAt:    time.Now(),
		})
	})
	require.NoError(t, err)

	//gormを通さずに確認
	sqlDB, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	var got auditRow
	err = sqlDB.QueryRowContext(ctx,
		`SELECT action, resource_id FROM audit_logs WHERE resource_id = $1 ORDER BY id DESC LIMIT 1`, p.ID,
	).Scan(&got.Action, &got.ResourceID)
	require.NoError(t, err)
	assert.Equal(t, string(model.AuditActionAssignImage), got.Action)

	var image string
	require.NoError(t, sqlDB.QueryRowContext(ctx, `SELECT image FROM products WHERE id = $1`, p.ID).Scan(&image))
	assert.Equal(t, img, image)
}
