package http

import (
	"context"
	"encoding/json"
	"strings"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

// Inbound action names shared by the REST and WebSocket transports.
const (
	actionStart  = "start"
	actionRoll   = "roll"
	actionServe  = "serve"
	actionSubmit = "submit"
	actionGrade  = "grade"
	actionSkip   = "skip"
	actionHop    = "hop"
	actionFinish = "finish"

	actionLeaderboard = "leaderboard"
	// Name used by the original socket clients for the same request.
	actionRequestLeaderboard = "request_leaderboard"
)

type submitPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type gradePayload struct {
	AnswerID  string `json:"answerId"`
	IsCorrect bool   `json:"isCorrect"`
	// Points is optional; zero awards the difficulty default.
	Points int `json:"points"`
}

type submitResult struct {
	AnswerID string `json:"answerId"`
}

type okResult struct {
	Status string `json:"status"`
}

// dispatch runs one named action for an authenticated actor.
func dispatch(ctx context.Context, service *app.GameService, room string, actor domain.Actor, action string, raw json.RawMessage) (any, error) {
	switch strings.ToLower(action) {
	case actionStart:
		if err := service.StartGame(ctx, room, actor); err != nil {
			return nil, err
		}
		return okResult{Status: "started"}, nil
	case actionRoll:
		return service.RollDice(ctx, room, actor)
	case actionServe:
		return service.ServeQuestion(ctx, room, actor)
	case actionSubmit:
		var payload submitPayload
		if err := decodePayload(raw, &payload); err != nil || payload.QuestionID == "" {
			return nil, domain.ErrInvalidPayload
		}
		answerID, err := service.SubmitAnswer(ctx, room, actor, payload.QuestionID, payload.Answer)
		if err != nil {
			return nil, err
		}
		return submitResult{AnswerID: answerID}, nil
	case actionGrade:
		var payload gradePayload
		if err := decodePayload(raw, &payload); err != nil || payload.AnswerID == "" {
			return nil, domain.ErrInvalidPayload
		}
		return service.GradeAnswer(ctx, room, actor, payload.AnswerID, payload.IsCorrect, payload.Points)
	case actionSkip:
		return service.SkipAnswer(ctx, room, actor)
	case actionHop:
		if err := service.HopTurn(ctx, room, actor); err != nil {
			return nil, err
		}
		return okResult{Status: "hopped"}, nil
	case actionFinish:
		return service.FinishGame(ctx, room, actor)
	case actionLeaderboard, actionRequestLeaderboard:
		return service.Leaderboard(ctx, room)
	}
	return nil, domain.ErrInvalidAction
}

func decodePayload(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return domain.ErrInvalidPayload
	}
	return json.Unmarshal(raw, target)
}
