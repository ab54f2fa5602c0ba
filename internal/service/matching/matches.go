package matching

import (
	"context"

	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
)

// MatchSummary is one row of the matches screen.
type MatchSummary struct {
	Match       db.Match    `json:"match"`
	Other       *db.Profile `json:"other,omitempty"`
	LastMessage *db.Message `json:"last_message,omitempty"`
	Unread      int64       `json:"unread"`
}

// ListMatches returns the session user's visible matches, newest first,
// with the other participant's profile, the last message and the unread badge.
//
// Matches across a block are hidden. A missing profile leaves Other nil.
func (s *Service) ListMatches(ctx context.Context, sess auth.Session) ([]MatchSummary, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	userID := sess.UserID

	matches, err := s.matches.ListForUser(ctx, userID)
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}

	others := make([]string, 0, len(matches))
	for _, m := range matches {
		others = append(others, m.Other(userID))
	}
	profiles, err := s.profiles.GetMany(ctx, others)
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}

	out := make([]MatchSummary, 0, len(matches))
	for _, m := range matches {
		sum := MatchSummary{Match: m}
		if p, ok := profiles[m.Other(userID)]; ok {
			sum.Other = &p
		}

		last, err := s.messages.Last(ctx, m.ID)
		if err != nil {
			return nil, svcErr.Unavailable(err)
		}
		sum.LastMessage = last

		if s.unread != nil {
			n, err := s.unread.CountUnread(ctx, m.ID, userID)
			if err != nil {
				return nil, err
			}
			sum.Unread = n
		}
		out = append(out, sum)
	}
	return out, nil
}
