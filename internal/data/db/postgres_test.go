package db

import (
	"path/filepath"
	"testing"

	"github.com/yungbote/branchgraph/internal/platform/logger"
)

func TestNewServiceSQLiteMigrates(t *testing.T) {
	svc, err := NewService(logger.Nop(), Config{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "catalog.db")})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer svc.Close()
	if err := AutoMigrateAll(svc.DB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !svc.DB().Migrator().HasTable("branches") {
		t.Fatalf("branches table missing")
	}
}

func TestNewServiceRejectsUnknownDriver(t *testing.T) {
	if _, err := NewService(logger.Nop(), Config{Driver: "oracle"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
