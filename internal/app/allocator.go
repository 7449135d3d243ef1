package app

import "quiz-arena-service/internal/domain"

// AllocateQuestion picks an unserved question for band. Of the band's two
// tiers it prefers the one with more unserved questions, falling back to the
// lower tier on a tie. Within a tier, pool order decides. The served set is
// not modified.
func AllocateQuestion(pool []domain.Question, band domain.Band, served map[string]struct{}) (domain.Question, error) {
	tiers := band.Tiers()
	remaining := [2]int{}
	first := [2]int{-1, -1}
	for i, q := range pool {
		if _, done := served[q.ID]; done {
			continue
		}
		for t, tier := range tiers {
			if q.Difficulty != tier {
				continue
			}
			remaining[t]++
			if first[t] < 0 {
				first[t] = i
			}
		}
	}

	pick := 0
	if remaining[1] > remaining[0] {
		pick = 1
	}
	if remaining[pick] == 0 {
		return domain.Question{}, domain.ErrPoolExhausted
	}
	return pool[first[pick]], nil
}

// RemainingByTier counts unserved questions per tier.
func RemainingByTier(pool []domain.Question, served map[string]struct{}) map[domain.Difficulty]int {
	counts := make(map[domain.Difficulty]int, 4)
	for _, q := range pool {
		if _, done := served[q.ID]; !done {
			counts[q.Difficulty]++
		}
	}
	return counts
}

// ValidatePool checks that a quiz can feed every turn of a game.
func ValidatePool(quiz domain.Quiz, numTeams, numRounds int) error {
	if numTeams < 1 || numRounds < 1 {
		return domain.ErrInvalidQuizConfig
	}
	seen := make(map[string]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if !q.Difficulty.Valid() {
			return domain.ErrInvalidDifficulty
		}
		seen[q.ID] = struct{}{}
	}
	// Compared without multiplying so huge counts cannot wrap around.
	if numTeams > len(seen) || numRounds > len(seen)/numTeams {
		return domain.ErrInsufficientQuestions
	}
	return nil
}
