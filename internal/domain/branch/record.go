package branch

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

// BranchRecord is the catalog row of one branch. Timestamps are stored in
// their canonical string form so microseconds survive every driver.
type BranchRecord struct {
	Name           string `gorm:"column:name;primaryKey;size:64"`
	Description    string `gorm:"column:description;size:512"`
	OriginBranch   string `gorm:"column:origin_branch;size:64;not null"`
	BranchedFrom   string `gorm:"column:branched_from;size:32;not null"`
	Created        string `gorm:"column:created_at;size:32;not null"`
	HierarchyLevel int    `gorm:"column:hierarchy_level;not null"`
	IsDefault      bool   `gorm:"column:is_default;not null;default:false"`
	IsGlobal       bool   `gorm:"column:is_global;not null;default:false"`
	SchemaHash     string `gorm:"column:schema_hash;size:64"`
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (BranchRecord) TableName() string { return "branches" }

// RecordFrom converts a branch into its catalog row.
func RecordFrom(b Branch) *BranchRecord {
	return &BranchRecord{
		Name:           b.Name,
		Description:    b.Description,
		OriginBranch:   b.OriginBranch,
		BranchedFrom:   b.BranchedFrom.String(),
		Created:        b.CreatedAt.String(),
		HierarchyLevel: b.HierarchyLevel,
		IsDefault:      b.IsDefault,
		IsGlobal:       b.IsGlobal,
		SchemaHash:     b.SchemaHash,
	}
}

func (r *BranchRecord) ToBranch() (*Branch, error) {
	branchedFrom, err := timestamp.Parse(r.BranchedFrom)
	if err != nil {
		return nil, err
	}
	created, err := timestamp.Parse(r.Created)
	if err != nil {
		return nil, err
	}
	return &Branch{
		Name:           r.Name,
		Description:    r.Description,
		OriginBranch:   r.OriginBranch,
		BranchedFrom:   branchedFrom,
		CreatedAt:      created,
		HierarchyLevel: r.HierarchyLevel,
		IsDefault:      r.IsDefault,
		IsGlobal:       r.IsGlobal,
		SchemaHash:     r.SchemaHash,
	}, nil
}

