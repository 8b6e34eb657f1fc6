package schema

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Version is bumped whenever the stored document layout changes.
const Version = "1"

const versionKey = "schema_version"

type Meta struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Key       string    `gorm:"column:key;type:text;uniqueIndex;not null"`
	Value     string    `gorm:"column:value;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (Meta) TableName() string {
	return "crms_meta"
}

// StampVersion records Version after a migration.
func StampVersion(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Meta{Key: versionKey, Value: Version}).Error
}

// StoredVersion returns the recorded version, or "" before the first init.
func StoredVersion(ctx context.Context, db *gorm.DB) (string, error) {
	var meta Meta
	err := db.WithContext(ctx).Where("key = ?", versionKey).Limit(1).Find(&meta).Error
	if err != nil {
		return "", err
	}
	return meta.Value, nil
}
