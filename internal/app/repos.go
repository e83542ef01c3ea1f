package app

import (
	"gorm.io/gorm"

	branchrepo "github.com/yungbote/branchgraph/internal/data/repos/branch"
	"github.com/yungbote/branchgraph/internal/platform/logger"
)

type Repos struct {
	Branch branchrepo.BranchRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Branch: branchrepo.NewBranchRepo(db, log),
	}
}
