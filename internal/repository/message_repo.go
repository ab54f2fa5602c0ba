package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oggyb/buildermatch/internal/db"

	"gorm.io/gorm"
)

// MessageRepository provides data access methods for conversation messages.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// Create persists m; the ID is assigned by the database.
func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Get returns the message with the given id or gorm.ErrRecordNotFound.
func (r *MessageRepository) Get(ctx context.Context, id uint64) (*db.Message, error) {
	var m db.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMarkingRead marks every unread message in matchID not sent by viewerID
// as read at now, then returns the whole conversation.
//
// Behavior:
//   - Both steps run in one transaction; the returned rows reflect the update.
//   - Ordered by created_at ASC, id ASC.
//   - marked is the number of rows whose read_at changed (0 on a repeat call).
func (r *MessageRepository) ListMarkingRead(
	ctx context.Context,
	matchID, viewerID string,
	now time.Time,
) (messages []db.Message, marked int64, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Message{}).
			Where("match_id = ? AND sender_id <> ? AND read_at IS NULL", matchID, viewerID).
			Update("read_at", now)
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected

		return tx.Where("match_id = ?", matchID).
			Order("created_at ASC, id ASC").
			Find(&messages).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return messages, marked, nil
}

// MarkRead sets read_at on one message if viewerID is not its sender and it is unread.
// Returns the number of rows changed (0 or 1).
func (r *MessageRepository) MarkRead(ctx context.Context, id uint64, viewerID string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id = ? AND sender_id <> ? AND read_at IS NULL", id, viewerID).
		Update("read_at", now)
	return res.RowsAffected, res.Error
}

// CountUnread counts messages in matchID with sender_id <> viewerID and read_at IS NULL.
func (r *MessageRepository) CountUnread(ctx context.Context, matchID, viewerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("match_id = ? AND sender_id <> ? AND read_at IS NULL", matchID, viewerID).
		Count(&count).Error
	return count, err
}

// Last returns the newest message of matchID, or nil when there is none.
func (r *MessageRepository) Last(ctx context.Context, matchID string) (*db.Message, error) {
	var m db.Message
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
