// Package testutil 提供测试用的 sqlite 数据库与种子数据
package testutil

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"PoolSettle/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 创建临时文件 sqlite 库并迁移全部表。单连接保证事务串行
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(0)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewLogger 静默日志
func NewLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// SeedUser 创建用户与积分账户
func SeedUser(t testing.TB, db *gorm.DB, wallet string, balance int64) *model.User {
	t.Helper()
	u := &model.User{WalletAddress: wallet}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := db.Create(&model.UserPoints{UserID: u.ID, Balance: balance}).Error; err != nil {
		t.Fatalf("seed points: %v", err)
	}
	return u
}

// SeedMarket 创建一个开放市场
func SeedMarket(t testing.TB, db *gorm.DB, closeTime time.Time, maxBet int64) *model.Market {
	t.Helper()
	m := &model.Market{Title: "test market", CloseTime: closeTime.UTC(), MaxBet: maxBet}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed market: %v", err)
	}
	return m
}

// Balance 读取用户余额
func Balance(t testing.TB, db *gorm.DB, userID uint64) int64 {
	t.Helper()
	var p model.UserPoints
	if err := db.Where("user_id = ?", userID).First(&p).Error; err != nil {
		t.Fatalf("load points: %v", err)
	}
	return p.Balance
}
