package models

import "errors"

// Ошибки уровня приложения
var (
	// Общие ошибки ресурсов/БД
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input data")
	ErrBadRequest   = errors.New("bad request")

	// Голосование
	ErrDuplicateVote = errors.New("voter has already voted for this chapter")
	ErrInvalidOption = errors.New("option does not belong to chapter")
	ErrVotingClosed  = errors.New("voting is closed for this chapter")
	ErrRateLimited   = errors.New("voter cooldown is active")

	// Генерация
	ErrInvalidTransition      = errors.New("invalid generation status transition")
	ErrGenerationInFlight     = errors.New("generation is already in flight for this chapter")
	ErrGenerationNotRetryable = errors.New("generation record cannot be retried in its current state")
	ErrGenerationFailed       = errors.New("content generation failed")
	ErrMalformedOutput        = errors.New("content generator returned malformed output")
	ErrSequenceTaken          = errors.New("chapter sequence number already taken")

	// Иллюстрации
	ErrIllustrationFailed = errors.New("illustration generation failed")

	// Авторизация (админ-эндпоинты)
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenInvalid = errors.New("token is invalid")
)
