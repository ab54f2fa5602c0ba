package repository

import (
	"context"

	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/utils/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository provides data access methods for profiles.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// Upsert inserts the profile or overwrites every owner-editable column.
// created_at is only ever written by the first insert.
func (r *ProfileRepository) Upsert(ctx context.Context, p *db.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "one_liner", "avatar_url", "project_url",
				"tech_stack", "looking_for", "building_pace", "timezone", "updated_at",
			}),
		}).
		Create(p).Error
}

// Get returns the profile with the given id or gorm.ErrRecordNotFound.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*db.Profile, error) {
	var p db.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetMany loads the given profiles keyed by id. Missing ids are absent from the map.
func (r *ProfileRepository) GetMany(ctx context.Context, ids []string) (map[string]db.Profile, error) {
	out := make(map[string]db.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var profiles []db.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

// Candidates returns onboarded profiles the viewer may still swipe on.
//
// Behavior:
//   - Excludes the viewer, every profile the viewer already swiped (any action),
//     and every profile joined to the viewer by a block in either direction.
//   - Only onboarded profiles (non-empty display_name) are returned.
//   - Ordered by created_at DESC, id DESC.
//   - Keyset pagination via paginationToken; a page never repeats an earlier one.
//
// Example:
//
//	repo.Candidates(ctx, "viewer", nil, 20)
func (r *ProfileRepository) Candidates(
	ctx context.Context,
	viewerID string,
	paginationToken *string,
	limit int,
) ([]db.Profile, *string, error) {
	var profiles []db.Profile

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("profiles p").
		Select("p.*").
		Where("p.id <> ? AND p.display_name <> ''", viewerID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM swipes s
				WHERE s.actor_id = ?
				  AND s.target_id = p.id
			)`, viewerID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = ? AND b.blocked_id = p.id)
				   OR (b.blocker_id = p.id AND b.blocked_id = ?)
			)`, viewerID, viewerID).
		Order("p.created_at DESC, p.id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := cursor.Time()
		query = query.Where(
			"(p.created_at < ? OR (p.created_at = ? AND p.id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&profiles).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(profiles) > limit {
		last := profiles[limit-1]
		token, _ := pagination.Encode(pagination.At(last.CreatedAt, last.ID))
		nextToken = &token
		profiles = profiles[:limit]
	}

	return profiles, nextToken, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
