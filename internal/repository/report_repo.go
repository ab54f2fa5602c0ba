package repository

import (
	"context"

	"github.com/oggyb/buildermatch/internal/db"

	"gorm.io/gorm"
)

// ReportRepository appends moderation reports. Reports are never mutated.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(database *gorm.DB) *ReportRepository {
	return &ReportRepository{db: database}
}

func (r *ReportRepository) Create(ctx context.Context, rep *db.Report) error {
	return r.db.WithContext(ctx).Create(rep).Error
}

// CountAgainst returns how many reports name reportedID.
func (r *ReportRepository) CountAgainst(ctx context.Context, reportedID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Report{}).
		Where("reported_id = ?", reportedID).
		Count(&count).Error
	return count, err
}
