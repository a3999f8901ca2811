package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
)

// MigrateDB 迁移快照表和操作归档表
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := db.AutoMigrate(&domain.Snapshot{}, &domain.ActionRecord{}); err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	// 旧表可能缺少 action_id 唯一索引，归档去重依赖它
	m := db.Migrator()
	if !m.HasIndex(&domain.ActionRecord{}, "ActionID") {
		if err := m.CreateIndex(&domain.ActionRecord{}, "ActionID"); err != nil {
			return fmt.Errorf("failed to create action_id index: %w", err)
		}
		logrus.Info("Created unique index on action_records.action_id")
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
