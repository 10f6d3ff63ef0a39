package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"voting-workflow/service"
)

const (
	codeInvalidRequest  = "invalid_request"
	codeUnauthenticated = "unauthenticated"
	codeLoginFailed     = "login_failed"
	codeInternal        = "internal_error"
	codeUnavailable     = "unavailable"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an election failure kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrPhase),
		errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrAlreadyVoted):
		return http.StatusConflict
	case errors.Is(err, service.ErrEmptyProposal):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeElectionError(w http.ResponseWriter, err error) {
	var ee *service.ElectionError
	if errors.As(err, &ee) {
		writeError(w, statusFor(err), ee.Code(), ee.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
