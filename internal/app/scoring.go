package app

import "quiz-arena-service/internal/domain"

// MaxBonus is the only bonus a facilitator may add on top of the base points.
const MaxBonus = 1

var difficultyPoints = map[domain.Difficulty]int{
	domain.Easy:   2,
	domain.Medium: 2,
	domain.Hard:   3,
	domain.Insane: 3,
}

// BasePoints returns the points a correct answer of difficulty d is worth.
func BasePoints(d domain.Difficulty) (int, error) {
	points, ok := difficultyPoints[d]
	if !ok {
		return 0, domain.ErrInvalidDifficulty
	}
	return points, nil
}

// Points scores a graded answer. Incorrect answers are worth nothing and
// cannot carry a bonus.
func Points(d domain.Difficulty, correct bool, bonus int) (int, error) {
	base, err := BasePoints(d)
	if err != nil {
		return 0, err
	}
	if bonus < 0 || bonus > MaxBonus {
		return 0, domain.ErrInvalidPoints
	}
	if !correct {
		if bonus != 0 {
			return 0, domain.ErrInvalidPoints
		}
		return 0, nil
	}
	return base + bonus, nil
}

// bonusFromPoints turns a facilitator's requested total into a bonus.
// Zero means "use the default for this verdict".
func bonusFromPoints(d domain.Difficulty, correct bool, requested int) (int, error) {
	if requested == 0 {
		return 0, nil
	}
	if !correct {
		return 0, domain.ErrInvalidPoints
	}
	base, err := BasePoints(d)
	if err != nil {
		return 0, err
	}
	bonus := requested - base
	if bonus < 0 || bonus > MaxBonus {
		return 0, domain.ErrInvalidPoints
	}
	return bonus, nil
}
