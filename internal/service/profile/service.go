package profile

import (
	"context"
	"errors"
	"slices"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/logger"
	"github.com/oggyb/buildermatch/internal/repository"
)

const (
	maxDisplayName = 128
	maxOneLiner    = 280
	maxURL         = 512
	maxTechStack   = 20
)

var (
	LookingFor    = []string{"cofounder", "accountability", "feedback", "technical", "design", "networking"}
	BuildingPaces = []string{"daily", "weekly", "weekends", "slow"}
)

// Input is the owner-editable part of a profile.
type Input struct {
	DisplayName  string   `json:"display_name"`
	OneLiner     string   `json:"one_liner"`
	AvatarURL    string   `json:"avatar_url,omitempty"`
	ProjectURL   string   `json:"project_url,omitempty"`
	TechStack    []string `json:"tech_stack,omitempty"`
	LookingFor   []string `json:"looking_for,omitempty"`
	BuildingPace string   `json:"building_pace,omitempty"`
	Timezone     string   `json:"timezone,omitempty"`
}

// Service manages the session user's own profile row.
type Service struct {
	appCtx   *app.AppContext
	profiles *repository.ProfileRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		profiles: repository.NewProfileRepository(appCtx.DB),
	}
}

// Upsert completes onboarding or edits the session user's profile.
//
// Behavior:
//   - display_name and one_liner are required. Empty ones fall back to the
//     identity provider's display name where possible.
//   - looking_for and building_pace must come from their closed sets.
//   - tech_stack is trimmed and de-duplicated.
//   - created_at is kept from the first write.
func (s *Service) Upsert(ctx context.Context, sess auth.Session, in Input) (*db.Profile, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}

	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.DisplayName == "" {
		in.DisplayName = strings.TrimSpace(sess.DisplayName)
	}
	if in.AvatarURL == "" {
		in.AvatarURL = sess.AvatarURL
	}
	in.OneLiner = strings.TrimSpace(in.OneLiner)

	if err := validate(&in); err != nil {
		return nil, err
	}

	now := s.appCtx.Now()
	p := &db.Profile{
		ID:           sess.UserID,
		DisplayName:  in.DisplayName,
		OneLiner:     in.OneLiner,
		AvatarURL:    in.AvatarURL,
		ProjectURL:   strings.TrimSpace(in.ProjectURL),
		TechStack:    in.TechStack,
		LookingFor:   in.LookingFor,
		BuildingPace: in.BuildingPace,
		Timezone:     strings.TrimSpace(in.Timezone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		logger.FromContext(ctx, s.appCtx.Logger).Error("profile upsert failed", "user", sess.UserID, "err", err)
		return nil, svcErr.Unavailable(err)
	}

	return s.get(ctx, sess.UserID)
}

// Get returns any onboarded or partial profile by id.
func (s *Service) Get(ctx context.Context, sess auth.Session, id string) (*db.Profile, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	if id == "" {
		id = sess.UserID
	}
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (*db.Profile, error) {
	p, err := s.profiles.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("profile " + id)
	}
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}
	return p, nil
}

func validate(in *Input) error {
	switch {
	case in.DisplayName == "":
		return svcErr.Invalid("display_name", "required")
	case utf8.RuneCountInString(in.DisplayName) > maxDisplayName:
		return svcErr.Invalid("display_name", "too long")
	case in.OneLiner == "":
		return svcErr.Invalid("one_liner", "required")
	case utf8.RuneCountInString(in.OneLiner) > maxOneLiner:
		return svcErr.Invalid("one_liner", "too long")
	case len(in.AvatarURL) > maxURL:
		return svcErr.Invalid("avatar_url", "too long")
	case len(in.ProjectURL) > maxURL:
		return svcErr.Invalid("project_url", "too long")
	case in.BuildingPace != "" && !slices.Contains(BuildingPaces, in.BuildingPace):
		return svcErr.Invalid("building_pace", "must be one of "+strings.Join(BuildingPaces, ", "))
	}

	for _, v := range in.LookingFor {
		if !slices.Contains(LookingFor, v) {
			return svcErr.Invalid("looking_for", "unknown value "+v)
		}
	}
	in.LookingFor = dedupe(in.LookingFor)

	in.TechStack = dedupe(in.TechStack)
	if len(in.TechStack) > maxTechStack {
		return svcErr.Invalid("tech_stack", "at most 20 entries")
	}
	return nil
}

// dedupe trims entries, drops empties and repeats, and keeps first-seen order.
func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		key := strings.ToLower(it)
		if it == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
