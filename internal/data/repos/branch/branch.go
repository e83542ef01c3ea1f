package branch

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/pkg/dbctx"
	"github.com/yungbote/branchgraph/internal/platform/logger"
)

type BranchRepo interface {
	Create(dbc dbctx.Context, b domainbranch.Branch) error
	// EnsureExists creates b unless a row with the same name exists.
	EnsureExists(dbc dbctx.Context, b domainbranch.Branch) error
	Get(dbc dbctx.Context, name string) (*domainbranch.Branch, error)
	List(dbc dbctx.Context) ([]*domainbranch.Branch, error)
	// MoveBranchedFrom is a compare-and-set on branched_from.
	MoveBranchedFrom(dbc dbctx.Context, name string, expected, next timestamp.Timestamp) (bool, error)
	UpdateSchemaHash(dbc dbctx.Context, name, hash string) error
	Delete(dbc dbctx.Context, name string) (bool, error)
}

type branchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBranchRepo(db *gorm.DB, baseLog *logger.Logger) BranchRepo {
	return &branchRepo{
		db:  db,
		log: baseLog.With("repo", "BranchRepo"),
	}
}

func (r *branchRepo) tx(dbc dbctx.Context) *gorm.DB {
	return dbc.DB(r.db)
}

func (r *branchRepo) Create(dbc dbctx.Context, b domainbranch.Branch) error {
	return r.tx(dbc).Create(domainbranch.RecordFrom(b)).Error
}

func (r *branchRepo) EnsureExists(dbc dbctx.Context, b domainbranch.Branch) error {
	return r.tx(dbc).Clauses(clause.OnConflict{DoNothing: true}).Create(domainbranch.RecordFrom(b)).Error
}

func (r *branchRepo) Get(dbc dbctx.Context, name string) (*domainbranch.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var rec domainbranch.BranchRecord
	err := r.tx(dbc).Where("name = ?", name).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.ToBranch()
}

func (r *branchRepo) List(dbc dbctx.Context) ([]*domainbranch.Branch, error) {
	var recs []domainbranch.BranchRecord
	if err := r.tx(dbc).Order("hierarchy_level ASC, name ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*domainbranch.Branch, 0, len(recs))
	for i := range recs {
		b, err := recs[i].ToBranch()
		if err != nil {
			r.log.Warn("skipping unreadable branch row", "branch", recs[i].Name, "error", err)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *branchRepo) MoveBranchedFrom(dbc dbctx.Context, name string, expected, next timestamp.Timestamp) (bool, error) {
	res := r.tx(dbc).Model(&domainbranch.BranchRecord{}).
		Where("name = ? AND branched_from = ?", name, expected.String()).
		Update("branched_from", next.String())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *branchRepo) UpdateSchemaHash(dbc dbctx.Context, name, hash string) error {
	return r.tx(dbc).Model(&domainbranch.BranchRecord{}).Where("name = ?", name).Update("schema_hash", hash).Error
}

func (r *branchRepo) Delete(dbc dbctx.Context, name string) (bool, error) {
	res := r.tx(dbc).Where("name = ? AND is_default = ? AND is_global = ?", name, false, false).Delete(&domainbranch.BranchRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
