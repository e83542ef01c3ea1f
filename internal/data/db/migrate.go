package db

import (
	"gorm.io/gorm"

	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domainbranch.BranchRecord{},
	)
}
