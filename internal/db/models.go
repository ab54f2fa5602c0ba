package db

import (
	"time"

	"gorm.io/datatypes"
)

// SwipeAction is the closed set of decisions an actor can make about a candidate.
type SwipeAction string

const (
	ActionPass         SwipeAction = "pass"
	ActionConnect      SwipeAction = "connect"
	ActionSuperConnect SwipeAction = "super_connect"
)

// Valid reports whether a is one of the known actions.
func (a SwipeAction) Valid() bool {
	switch a {
	case ActionPass, ActionConnect, ActionSuperConnect:
		return true
	}
	return false
}

// Compatible reports whether a counts towards a mutual match.
func (a SwipeAction) Compatible() bool {
	return a == ActionConnect || a == ActionSuperConnect
}

// ReportReason is the closed set of report categories.
type ReportReason string

const (
	ReasonSpam          ReportReason = "spam"
	ReasonInappropriate ReportReason = "inappropriate"
	ReasonHarassment    ReportReason = "harassment"
	ReasonScam          ReportReason = "scam"
	ReasonOther         ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReasonSpam, ReasonInappropriate, ReasonHarassment, ReasonScam, ReasonOther:
		return true
	}
	return false
}

// Profile is keyed by the identity provider's user id.
//
// Indexes:
//   - idx_profiles_created_id(created_at DESC, id DESC)
//     Serves the candidate feed keyset scan.
type Profile struct {
	ID           string                      `gorm:"primaryKey;size:64;index:idx_profiles_created_id,priority:2,sort:desc" json:"id"`
	DisplayName  string                      `gorm:"size:128;not null" json:"display_name"`
	OneLiner     string                      `gorm:"size:280;not null" json:"one_liner"`
	AvatarURL    string                      `gorm:"size:512" json:"avatar_url,omitempty"`
	ProjectURL   string                      `gorm:"size:512" json:"project_url,omitempty"`
	TechStack    datatypes.JSONSlice[string] `json:"tech_stack"`
	LookingFor   datatypes.JSONSlice[string] `json:"looking_for"`
	BuildingPace string                      `gorm:"size:16" json:"building_pace,omitempty"`
	Timezone     string                      `gorm:"size:64" json:"timezone,omitempty"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime;index:idx_profiles_created_id,priority:1,sort:desc" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// Swipe is one actor's decision on one target.
//
// Composite PK: (ActorID, TargetID)
//   - At most one swipe per ordered pair; a second insert is a duplicate.
//
// Indexes:
//   - idx_swipes_target_actor(target_id, actor_id): mirror lookups.
//   - idx_swipes_actor_action_created(actor_id, action, created_at): daily super-connect counts.
type Swipe struct {
	ActorID   string      `gorm:"primaryKey;size:64;index:idx_swipes_actor_action_created,priority:1" json:"actor_id"`
	TargetID  string      `gorm:"primaryKey;size:64;index:idx_swipes_target_actor,priority:1" json:"target_id"`
	Action    SwipeAction `gorm:"size:16;not null;index:idx_swipes_actor_action_created,priority:2" json:"action"`
	CreatedAt time.Time   `gorm:"autoCreateTime;index:idx_swipes_actor_action_created,priority:3" json:"created_at"`
}

// Match is the canonical record of a mutual pair: ParticipantA < ParticipantB.
//
// Unique index idx_matches_pair(participant_a, participant_b) absorbs
// concurrent reconciliation of the same pair.
type Match struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	ParticipantA string    `gorm:"size:64;not null;uniqueIndex:idx_matches_pair,priority:1" json:"participant_a"`
	ParticipantB string    `gorm:"size:64;not null;uniqueIndex:idx_matches_pair,priority:2;index" json:"participant_b"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// HasParticipant reports whether userID is one side of the match.
func (m Match) HasParticipant(userID string) bool {
	return m.ParticipantA == userID || m.ParticipantB == userID
}

// Other returns the participant that is not userID.
func (m Match) Other(userID string) string {
	if m.ParticipantA == userID {
		return m.ParticipantB
	}
	return m.ParticipantA
}

// Message belongs to a match. ID is monotonic and breaks created_at ties.
type Message struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MatchID   string     `gorm:"size:36;not null;index:idx_messages_match_created,priority:1" json:"match_id"`
	SenderID  string     `gorm:"size:64;not null" json:"sender_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index:idx_messages_match_created,priority:2" json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// Block is directional but hides both parties from each other.
//
// Composite PK: (BlockerID, BlockedID)
type Block struct {
	BlockerID string    `gorm:"primaryKey;size:64" json:"blocker_id"`
	BlockedID string    `gorm:"primaryKey;size:64;index" json:"blocked_id"`
	Reason    *string   `gorm:"size:280" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Report is append-only.
type Report struct {
	ID         string       `gorm:"primaryKey;size:36" json:"id"`
	ReporterID string       `gorm:"size:64;not null;index" json:"reporter_id"`
	ReportedID string       `gorm:"size:64;not null;index" json:"reported_id"`
	Reason     ReportReason `gorm:"size:32;not null" json:"reason"`
	Details    *string      `gorm:"type:text" json:"details,omitempty"`
	Status     string       `gorm:"size:16;not null;default:pending" json:"status"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{&Profile{}, &Swipe{}, &Match{}, &Message{}, &Block{}, &Report{}}
}
