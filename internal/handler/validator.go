package handler

import (
	"errors"
	"fmt"
	"strings"

	"novel-vote-server/internal/models"

	"github.com/go-playground/validator/v10"
)

// requestValidator подключает go-playground/validator к echo.Context.Validate.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate возвращает ошибку, оборачивающую models.ErrInvalidInput, с перечнем полей.
func (v *requestValidator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(parts, ", "))
}
