package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	seedStacks = []string{"Go", "TypeScript", "Rust", "Python", "Swift", "Kotlin", "Postgres", "React", "Elixir", "Terraform"}
	seedGoals  = []string{"cofounder", "accountability", "feedback", "technical", "design", "networking"}
	seedPaces  = []string{"daily", "weekly", "weekends", "slow"}
	seedLines  = []string{
		"shipping a habit tracker for indie hackers",
		"building an open-source feature flag service",
		"turning spreadsheets into APIs",
		"weekend game jam regular",
		"writing a tiny database for fun",
	}
)

// SeedSummary reports what SeedDemoData inserted.
type SeedSummary struct {
	UserIDs  []string
	Swipes   int
	Matches  int
	Messages int
}

// SeedDemoData resets the database and populates it with demo builders.
//
// Behavior:
//  1. Clears messages, matches, swipes, blocks, reports and profiles.
//  2. Creates n onboarded profiles builder01..builderNN, one minute apart.
//  3. Each builder swipes on ~8 others (60% connect, 10% super_connect, rest pass).
//     Every 3rd decision is made mutual and gets its match row and an opening message.
//
// Compatible with both MySQL and SQLite. seed makes the data reproducible.
func SeedDemoData(db *gorm.DB, n int, seed int64) (SeedSummary, error) {
	r := rand.New(rand.NewSource(seed))
	var sum SeedSummary

	// --- Fresh start ---
	for _, table := range []string{"messages", "matches", "swipes", "blocks", "reports", "profiles"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return sum, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE messages AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name = 'messages'")
	}
	slog.Debug("cleared existing data")

	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Duration(n) * time.Minute)

	// --- Profiles ---
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("builder%02d", i)
		p := Profile{
			ID:           id,
			DisplayName:  fmt.Sprintf("Builder %d", i),
			OneLiner:     seedLines[r.Intn(len(seedLines))],
			TechStack:    pick(r, seedStacks, 1+r.Intn(3)),
			LookingFor:   pick(r, seedGoals, 1+r.Intn(2)),
			BuildingPace: seedPaces[r.Intn(len(seedPaces))],
			Timezone:     "UTC",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(&p).Error; err != nil {
			return sum, fmt.Errorf("failed to seed profile: %w", err)
		}
		sum.UserIDs = append(sum.UserIDs, id)
	}
	slog.Debug("seeded profiles", "count", n)

	// --- Swipes and matches ---
	insertSwipe := func(s Swipe) (bool, error) {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&s)
		return res.RowsAffected > 0, res.Error
	}

	counter := 0
	for _, actor := range sum.UserIDs {
		for j := 0; j < 8; j++ {
			target := sum.UserIDs[r.Intn(n)]
			if target == actor {
				continue
			}

			action := ActionPass
			switch roll := r.Intn(100); {
			case roll < 10:
				action = ActionSuperConnect
			case roll < 70:
				action = ActionConnect
			}
			mutual := counter%3 == 0
			if mutual && action == ActionPass {
				action = ActionConnect
			}

			created, err := insertSwipe(Swipe{ActorID: actor, TargetID: target, Action: action, CreatedAt: base})
			if err != nil {
				return sum, fmt.Errorf("failed to seed swipe: %w", err)
			}
			if !created {
				continue
			}
			sum.Swipes++
			counter++

			if !mutual {
				continue
			}
			created, err = insertSwipe(Swipe{ActorID: target, TargetID: actor, Action: ActionConnect, CreatedAt: base})
			if err != nil {
				return sum, fmt.Errorf("failed to seed reciprocal swipe: %w", err)
			}
			if created {
				sum.Swipes++
			}

			var back Swipe
			if err := db.Where("actor_id = ? AND target_id = ?", target, actor).First(&back).Error; err != nil {
				return sum, err
			}
			if !back.Action.Compatible() {
				continue
			}

			a, b := actor, target
			if b < a {
				a, b = b, a
			}
			m := Match{ID: uuid.NewString(), ParticipantA: a, ParticipantB: b, CreatedAt: base}
			res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
			if res.Error != nil {
				return sum, fmt.Errorf("failed to seed match: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}
			sum.Matches++

			msg := Message{MatchID: m.ID, SenderID: actor, Content: "hey! what are you building this week?", CreatedAt: base}
			if err := db.Create(&msg).Error; err != nil {
				return sum, fmt.Errorf("failed to seed message: %w", err)
			}
			sum.Messages++
		}
	}

	return sum, nil
}

// pick returns k distinct items of src in random order.
func pick(r *rand.Rand, src []string, k int) []string {
	idx := r.Perm(len(src))[:min(k, len(src))]
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, src[i])
	}
	return out
}
