package app

import (
	"sort"
	"time"

	"quiz-arena-service/internal/domain"
)

// BuildLeaderboard ranks teams from scratch. Equal scores share a rank equal
// to one plus the number of teams with a strictly higher score; join order
// only decides display order among ties.
func BuildLeaderboard(sessionID string, teams []domain.Team, now time.Time) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(teams))
	order := make(map[string]int, len(teams))
	for _, team := range teams {
		entries = append(entries, domain.LeaderboardEntry{
			TeamID:   team.ID,
			Name:     team.Name,
			Score:    team.Score,
			Position: team.Position,
		})
		order[team.ID] = team.JoinOrder
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return order[entries[i].TeamID] < order[entries[j].TeamID]
	})

	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}

	return domain.Leaderboard{
		SessionID: sessionID,
		Entries:   entries,
		UpdatedAt: now,
	}
}
