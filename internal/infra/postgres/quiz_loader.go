package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-arena-service/internal/domain"
)

// QuizLoader loads a quiz and its question pool from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := l.pool.QueryRow(ctx,
		`SELECT name, num_teams, num_rounds FROM quizzes WHERE id=$1`, quizID,
	).Scan(&quiz.Name, &quiz.NumTeams, &quiz.NumRounds)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, prompt, type, difficulty, time_limit, options, correct_key, model_answer
		FROM questions
		WHERE quiz_id=$1
		ORDER BY position, id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q                 domain.Question
			qType, difficulty string
			options           []byte
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &qType, &difficulty, &q.TimeLimit, &options, &q.CorrectKey, &q.ModelAnswer); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qType)
		q.Difficulty = domain.Difficulty(difficulty)
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return domain.Quiz{}, fmt.Errorf("unmarshal options of %s: %w", q.ID, err)
			}
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}
