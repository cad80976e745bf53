package models

import "github.com/golang-jwt/jwt/v5"

// ServiceClaims - поля межсервисного токена для админ-эндпоинтов.
type ServiceClaims struct {
	ServiceID string `json:"service_id"`
	jwt.RegisteredClaims
}
