package http

import (
	"encoding/json"
	"log"
	"net/http"

	"quiz-arena-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:   http.StatusBadRequest,
	domain.KindConflict:     http.StatusConflict,
	domain.KindExhausted:    http.StatusConflict,
	domain.KindNotFound:     http.StatusNotFound,
	domain.KindForbidden:    http.StatusForbidden,
	domain.KindUnauthorized: http.StatusUnauthorized,
	domain.KindInternal:     http.StatusInternalServerError,
}

// toErrorPayload hides internal error text from clients.
func toErrorPayload(err error) (int, errorPayload) {
	kind := domain.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if kind == domain.KindInternal {
		log.Printf("[http] internal error: %v", err)
		return status, errorPayload{Code: string(kind), Message: "internal error"}
	}
	return status, errorPayload{Code: string(kind), Message: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	status, payload := toErrorPayload(err)
	writeJSON(w, status, struct {
		Error errorPayload `json:"error"`
	}{Error: payload})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}
