package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

const (
	headerFacilitatorToken = "X-Facilitator-Token"
	headerTeamID           = "X-Team-ID"
	maxBodyBytes           = 64 << 10
)

// APIHandler exposes the game use cases over plain HTTP for clients that
// do not hold a socket open (launch, lobby join, reconnect state).
type APIHandler struct {
	service *app.GameService
}

func NewAPIHandler(service *app.GameService) *APIHandler {
	return &APIHandler{service: service}
}

// Register mounts the REST routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quizzes/{quizID}/launch", h.launch)
	mux.HandleFunc("GET /api/rooms/{code}", h.room)
	mux.HandleFunc("POST /api/rooms/{code}/teams", h.joinTeam)
	mux.HandleFunc("GET /api/rooms/{code}/state", h.state)
	mux.HandleFunc("POST /api/rooms/{code}/actions/{action}", h.action)
	mux.HandleFunc("DELETE /api/rooms/{code}", h.teardown)
}

type launchRequest struct {
	NumTeams  int `json:"numTeams"`
	NumRounds int `json:"numRounds"`
}

type joinRequest struct {
	Name string `json:"name"`
}

func (h *APIHandler) launch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	key := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	launched, err := h.service.Launch(r.Context(), key, app.LaunchRequest{
		QuizID:    r.PathValue("quizID"),
		NumTeams:  req.NumTeams,
		NumRounds: req.NumRounds,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, launched)
}

func (h *APIHandler) joinTeam(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	team, err := h.service.JoinTeam(r.Context(), roomCode(r), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

// room lets a team check a code and see the lobby before joining.
func (h *APIHandler) room(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.LookupRoom(r.Context(), roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *APIHandler) state(w http.ResponseWriter, r *http.Request) {
	room := roomCode(r)
	actor, err := h.actor(r, room)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.service.GetState(r.Context(), room, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *APIHandler) action(w http.ResponseWriter, r *http.Request) {
	room := roomCode(r)
	actor, err := h.actor(r, room)
	if err != nil {
		writeError(w, err)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, domain.ErrInvalidPayload)
		return
	}
	result, err := dispatch(r.Context(), h.service, room, actor, r.PathValue("action"), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) teardown(w http.ResponseWriter, r *http.Request) {
	room := roomCode(r)
	actor, err := h.actor(r, room)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Teardown(r.Context(), room, actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actor resolves the caller from the facilitator token or team id headers.
func (h *APIHandler) actor(r *http.Request, room string) (domain.Actor, error) {
	if token := r.Header.Get(headerFacilitatorToken); token != "" {
		return h.service.Authenticate(r.Context(), room, domain.RoleFacilitator, token)
	}
	if teamID := r.Header.Get(headerTeamID); teamID != "" {
		return h.service.Authenticate(r.Context(), room, domain.RolePlayer, teamID)
	}
	return domain.Actor{}, domain.ErrUnauthorized
}

func roomCode(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("code")))
}

func decodeBody(r *http.Request, target any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return domain.ErrInvalidPayload
	}
	return nil
}
