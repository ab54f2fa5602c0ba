package repository

import (
	"context"

	"github.com/oggyb/buildermatch/internal/db"

	"gorm.io/gorm"
)

// MatchRepository stores canonical match records.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// Create inserts m. A second insert of the same canonical pair fails with
// gorm.ErrDuplicatedKey from the idx_matches_pair unique index.
func (r *MatchRepository) Create(ctx context.Context, m *db.Match) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// FindByPair returns the match for the canonical pair (a < b).
func (r *MatchRepository) FindByPair(ctx context.Context, a, b string) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", a, b).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Get returns the match with the given id or gorm.ErrRecordNotFound.
func (r *MatchRepository) Get(ctx context.Context, id string) (*db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListForUser returns the user's visible matches, newest first.
//
// Behavior:
//   - The user may be either participant.
//   - Matches whose participants are joined by a block in either direction are hidden.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Table("matches m").
		Select("m.*").
		Where("m.participant_a = ? OR m.participant_b = ?", userID, userID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = m.participant_a AND b.blocked_id = m.participant_b)
				   OR (b.blocker_id = m.participant_b AND b.blocked_id = m.participant_a)
			)`).
		Order("m.created_at DESC, m.id DESC").
		Find(&matches).Error
	return matches, err
}
