package handlers

import (
	"errors"
	"net/http"

	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/sirupsen/logrus"
)

// errorResponse is the body of every failed HTTP call and the payload of websocket errors.
type errorResponse struct {
	Type    string `json:"type,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps a rejection kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, game.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrInvalidPhase),
		errors.Is(err, game.ErrInvalidTurn),
		errors.Is(err, game.ErrRoomFull):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// describe returns the client-facing kind and message. Internal failures are not detailed.
func describe(err error) errorResponse {
	kind := game.KindName(err)
	var gerr *game.Error
	if kind == "internal" || kind == "invariant" || !errors.As(err, &gerr) {
		return errorResponse{Kind: kind, Message: "internal error"}
	}
	msg := gerr.Msg
	if msg == "" {
		msg = gerr.Kind.Error()
	}
	return errorResponse{Kind: kind, Message: msg}
}

func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, describe(err))
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "bad_request", Message: msg})
}

func writeUnauthenticated(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Kind: "unauthenticated", Message: err.Error()})
}
