package repository

import (
	"context"
	"time"

	"github.com/oggyb/buildermatch/internal/db"

	"gorm.io/gorm"
)

// SwipeRepository is the append-only interaction ledger.
// It never updates or deletes rows.
type SwipeRepository struct {
	db *gorm.DB
}

// NewSwipeRepository creates a new repository bound to the given DB connection.
func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

// Create inserts a swipe made by actor -> target.
//
// Behavior:
//   - Composite PK (actor_id, target_id) rejects a second swipe on the same pair.
//   - The violation surfaces as gorm.ErrDuplicatedKey (TranslateError is on).
//
// Example:
//
//	repo.Create(ctx, &db.Swipe{ActorID: "a", TargetID: "b", Action: db.ActionConnect})
func (r *SwipeRepository) Create(ctx context.Context, s *db.Swipe) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// HasConnected checks whether actor swiped target with a compatible action
// (connect or super_connect). Used as the mirror lookup during reconciliation.
func (r *SwipeRepository) HasConnected(ctx context.Context, actorID, targetID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		Where("action IN ?", []db.SwipeAction{db.ActionConnect, db.ActionSuperConnect}).
		Count(&count).Error
	return count > 0, err
}

// CountSince returns how many swipes of the given action actor made at or after since.
//
// Example:
//
//	repo.CountSince(ctx, "a", db.ActionSuperConnect, startOfDay) // -> 2
func (r *SwipeRepository) CountSince(
	ctx context.Context,
	actorID string,
	action db.SwipeAction,
	since time.Time,
) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("actor_id = ? AND action = ? AND created_at >= ?", actorID, action, since).
		Count(&count).Error
	return count, err
}

// Find returns the swipe actor made on target.
func (r *SwipeRepository) Find(ctx context.Context, actorID, targetID string) (*db.Swipe, error) {
	var s db.Swipe
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}
