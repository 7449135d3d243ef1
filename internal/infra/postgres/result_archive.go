package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"quiz-arena-service/internal/domain"
)

// GameResult is the archived outcome of one completed session.
type GameResult struct {
	bun.BaseModel `bun:"table:game_results"`

	SessionID   string                    `bun:"session_id,pk"`
	RoomCode    string                    `bun:"room_code,notnull"`
	QuizID      string                    `bun:"quiz_id,notnull"`
	Winners     []domain.LeaderboardEntry `bun:"winners,type:jsonb"`
	Leaderboard domain.Leaderboard        `bun:"leaderboard,type:jsonb"`
	CompletedAt time.Time                 `bun:"completed_at,notnull"`
}

// AnswerRecord is one archived answer of a completed session.
type AnswerRecord struct {
	bun.BaseModel `bun:"table:game_answers"`

	ID          string    `bun:"id,pk"`
	SessionID   string    `bun:"session_id,notnull"`
	TeamID      string    `bun:"team_id,notnull"`
	QuestionID  string    `bun:"question_id,notnull"`
	Round       int       `bun:"round,notnull"`
	Value       string    `bun:"value"`
	Unanswered  bool      `bun:"unanswered,notnull"`
	Correct     bool      `bun:"correct,notnull"`
	Points      int       `bun:"points,notnull"`
	Source      string    `bun:"source"`
	Finalized   bool      `bun:"finalized,notnull"`
	SubmittedAt time.Time `bun:"submitted_at,notnull"`
	GradedAt    time.Time `bun:"graded_at,nullzero"`
}

// ResultArchive stores final standings and answers with bun.
type ResultArchive struct {
	db *bun.DB
}

func NewResultArchive(db *bun.DB) *ResultArchive {
	return &ResultArchive{db: db}
}

func (a *ResultArchive) SaveResults(ctx context.Context, results domain.FinalResults) error {
	record := &GameResult{
		SessionID:   results.SessionID,
		RoomCode:    results.RoomCode,
		QuizID:      results.QuizID,
		Winners:     results.Winners,
		Leaderboard: results.Leaderboard,
		CompletedAt: results.CompletedAt,
	}
	answers := make([]AnswerRecord, 0, len(results.Answers))
	for _, answer := range results.Answers {
		answers = append(answers, AnswerRecord{
			ID:          answer.ID,
			SessionID:   results.SessionID,
			TeamID:      answer.TeamID,
			QuestionID:  answer.QuestionID,
			Round:       answer.Round,
			Value:       answer.Value,
			Unanswered:  answer.Unanswered,
			Correct:     answer.Correct,
			Points:      answer.Points,
			Source:      string(answer.Source),
			Finalized:   answer.Finalized,
			SubmittedAt: answer.SubmittedAt,
			GradedAt:    answer.GradedAt,
		})
	}

	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(record).On("CONFLICT (session_id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert game result: %w", err)
		}
		if len(answers) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&answers).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert answers: %w", err)
		}
		return nil
	})
}

// LoadResults reads back an archived session.
func (a *ResultArchive) LoadResults(ctx context.Context, sessionID string) (domain.FinalResults, error) {
	record := new(GameResult)
	err := a.db.NewSelect().Model(record).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FinalResults{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.FinalResults{}, fmt.Errorf("load game result: %w", err)
	}

	var answers []AnswerRecord
	if err := a.db.NewSelect().Model(&answers).
		Where("session_id = ?", sessionID).
		Order("round ASC", "submitted_at ASC").
		Scan(ctx); err != nil {
		return domain.FinalResults{}, fmt.Errorf("load answers: %w", err)
	}

	results := domain.FinalResults{
		SessionID:   record.SessionID,
		RoomCode:    record.RoomCode,
		QuizID:      record.QuizID,
		Winners:     record.Winners,
		Leaderboard: record.Leaderboard,
		CompletedAt: record.CompletedAt,
		Answers:     make([]domain.Answer, 0, len(answers)),
	}
	for _, answer := range answers {
		results.Answers = append(results.Answers, domain.Answer{
			ID:          answer.ID,
			QuestionID:  answer.QuestionID,
			TeamID:      answer.TeamID,
			Round:       answer.Round,
			Value:       answer.Value,
			Unanswered:  answer.Unanswered,
			Correct:     answer.Correct,
			Points:      answer.Points,
			Source:      domain.GradingSource(answer.Source),
			Finalized:   answer.Finalized,
			SubmittedAt: answer.SubmittedAt,
			GradedAt:    answer.GradedAt,
		})
	}
	return results, nil
}
