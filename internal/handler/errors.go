package handler

import (
	"errors"
	"net/http"

	"novel-vote-server/internal/models"

	"github.com/labstack/echo/v4"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// statusFor сопоставляет ошибку уровня приложения с HTTP-статусом и кодом ответа.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidOption):
		return http.StatusBadRequest, "invalid_option"
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrBadRequest):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrDuplicateVote):
		return http.StatusTooManyRequests, "duplicate_vote"
	case errors.Is(err, models.ErrVotingClosed):
		return http.StatusTooManyRequests, "voting_closed"
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, models.ErrGenerationInFlight):
		return http.StatusConflict, "generation_in_flight"
	case errors.Is(err, models.ErrGenerationNotRetryable):
		return http.StatusConflict, "generation_not_retryable"
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrTokenInvalid):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// handleServiceError пишет ответ об ошибке. Текст внутренних ошибок наружу не отдается.
func handleServiceError(c echo.Context, err error) error {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	return c.JSON(status, APIError{Message: msg, Code: code})
}
