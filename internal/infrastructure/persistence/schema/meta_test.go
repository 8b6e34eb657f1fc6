package schema

import (
	"context"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestStampVersionIsIdempotent(t *testing.T) {
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "meta.sqlite")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	defer sqlDB.Close()
	if err := db.AutoMigrate(&Meta{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	ctx := context.Background()
	if got, err := StoredVersion(ctx, db); err != nil || got != "" {
		t.Fatalf("StoredVersion() before stamp = %q, %v", got, err)
	}
	for i := 0; i < 2; i++ {
		if err := StampVersion(ctx, db); err != nil {
			t.Fatalf("StampVersion() error = %v", err)
		}
	}
	got, err := StoredVersion(ctx, db)
	if err != nil {
		t.Fatalf("StoredVersion() error = %v", err)
	}
	if got != Version {
		t.Fatalf("version = %q, want %q", got, Version)
	}

	var count int64
	if err := db.Model(&Meta{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
}
