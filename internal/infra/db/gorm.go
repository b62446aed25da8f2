package db

import (
	"fmt"
	"strings"

	"storefront/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
// "sqlite://" で始まればSQLite（開発・テスト用）、それ以外はPostgreSQL。
func Connect(databaseURL string, debug bool) (*gorm.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	level := logger.Warn
	if debug {
		level = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	var (
		gdb *gorm.DB
		err error
	)
	if strings.HasPrefix(databaseURL, "sqlite://") {
		gdb, err = gorm.Open(sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://")), cfg)
	} else {
		gdb, err = gorm.Open(postgres.Open(databaseURL), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return gdb, nil
}

// Migrate はこのサービスが持つテーブルを作成/更新する
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&model.Product{},
		&model.CartStateRecord{},
		&model.DiscountRule{},
		&model.AuditLog{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
	)
}
