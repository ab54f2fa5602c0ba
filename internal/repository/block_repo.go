package repository

import (
	"context"

	"github.com/oggyb/buildermatch/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlockRepository stores directional blocks.
type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

// Upsert creates the block, or overwrites its reason when it already exists.
func (r *BlockRepository) Upsert(ctx context.Context, b *db.Block) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason"}),
		}).
		Create(b).Error
}

// Delete removes blocker's block on blocked. Returns rows removed.
func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&db.Block{})
	return res.RowsAffected, res.Error
}

// ListByBlocker returns blocker's blocks, newest first.
func (r *BlockRepository) ListByBlocker(ctx context.Context, blockerID string) ([]db.Block, error) {
	var blocks []db.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC").
		Find(&blocks).Error
	return blocks, err
}

// ExistsBetween reports whether a block exists in either direction between a and b.
func (r *BlockRepository) ExistsBetween(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}
