package matching

import (
	"context"
	"errors"
	"iter"

	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/utils/pagination"
)

const maxCandidatePage = 100

// CandidatePage is one page of the swipe feed.
type CandidatePage struct {
	Profiles   []db.Profile `json:"profiles"`
	NextCursor string       `json:"next_cursor,omitempty"`
	HasMore    bool         `json:"has_more"`
}

// NextCandidates returns the next page of profiles the session user can swipe on.
//
// Behavior:
//   - Excludes self, every profile already swiped (any action) and both block directions.
//   - An empty cursor starts from the newest profile; exclusions are re-evaluated.
//   - limit <= 0 uses the configured page size; it is capped at 100.
//
// Example:
//
//	page, _ := svc.NextCandidates(ctx, sess, "", 0)
//	more, _ := svc.NextCandidates(ctx, sess, page.NextCursor, 0)
func (s *Service) NextCandidates(ctx context.Context, sess auth.Session, cursor string, limit int) (CandidatePage, error) {
	if err := sess.Require(); err != nil {
		return CandidatePage{}, err
	}
	if limit <= 0 {
		limit = s.appCtx.Config.Matching.CandidatePageSize
	}
	limit = min(limit, maxCandidatePage)

	var token *string
	if cursor != "" {
		token = &cursor
	}

	profiles, next, err := s.profiles.Candidates(ctx, sess.UserID, token, limit)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return CandidatePage{}, svcErr.Invalid("cursor", "malformed")
	}
	if err != nil {
		s.log(ctx).Error("candidate query failed", "viewer", sess.UserID, "err", err)
		return CandidatePage{}, svcErr.Unavailable(err)
	}

	page := CandidatePage{Profiles: profiles}
	if next != nil {
		page.NextCursor = *next
		page.HasMore = true
	}
	s.log(ctx).Debug("NextCandidates result", "viewer", sess.UserID, "count", len(profiles), "has_more", page.HasMore)
	return page, nil
}

// Candidates walks the whole feed lazily, one page per pull.
// Iteration stops at the first error, which is yielded once.
func (s *Service) Candidates(ctx context.Context, sess auth.Session, pageSize int) iter.Seq2[db.Profile, error] {
	return func(yield func(db.Profile, error) bool) {
		cursor := ""
		for {
			page, err := s.NextCandidates(ctx, sess, cursor, pageSize)
			if err != nil {
				yield(db.Profile{}, err)
				return
			}
			for _, p := range page.Profiles {
				if !yield(p, nil) {
					return
				}
			}
			if !page.HasMore {
				return
			}
			cursor = page.NextCursor
		}
	}
}
