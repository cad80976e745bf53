package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"novel-vote-server/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const serviceIDContextKey = "service_id"

// EchoZapLogger логирует запросы Echo через zap.
func EchoZapLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.String("user_agent", req.UserAgent()),
			}
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}
			if id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			err := next(c)
			if err != nil {
				// Echo выставит статус сам, здесь он еще не записан.
				c.Error(err)
			}

			fields = append(fields,
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
			)
			switch n := res.Status; {
			case n >= http.StatusInternalServerError:
				log.Error("Server error", append(fields, zap.Error(err))...)
			case n >= http.StatusBadRequest:
				log.Warn("Client error", fields...)
			default:
				log.Info("Success", fields...)
			}
			return nil
		}
	}
}

// ServiceTokenVerifier проверяет межсервисные HS256-токены админ-эндпоинтов.
type ServiceTokenVerifier struct {
	secret []byte
	logger *zap.Logger
}

// NewServiceTokenVerifier создает верификатор. Пустой секрет недопустим.
func NewServiceTokenVerifier(secret string, logger *zap.Logger) (*ServiceTokenVerifier, error) {
	if secret == "" {
		return nil, errors.New("admin JWT secret cannot be empty")
	}
	return &ServiceTokenVerifier{secret: []byte(secret), logger: logger.Named("ServiceTokenVerifier")}, nil
}

// Verify проверяет подпись и срок действия токена и возвращает его claims.
func (v *ServiceTokenVerifier) Verify(_ context.Context, tokenString string) (*models.ServiceClaims, error) {
	claims := &models.ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		v.logger.Warn("Failed to verify service token", zap.String("tokenSnippet", tokenSnippet(tokenString)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	if claims.ServiceID == "" && claims.Subject == "" {
		return nil, fmt.Errorf("%w: service id missing", models.ErrTokenInvalid)
	}
	return claims, nil
}

// Issue подписывает токен для сервиса serviceID. Используется утилитами и тестами.
func (v *ServiceTokenVerifier) Issue(serviceID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := models.ServiceClaims{
		ServiceID: serviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   serviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// AdminAuthMiddleware требует заголовок Authorization: Bearer <service token>.
func AdminAuthMiddleware(verifier *ServiceTokenVerifier, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.With(zap.String("path", c.Request().URL.Path))

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				log.Warn("Authorization header missing or malformed")
				return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized: missing service token", Code: "unauthorized"})
			}

			claims, err := verifier.Verify(c.Request().Context(), tokenString)
			if err != nil {
				return handleServiceError(c, err)
			}
			serviceID := claims.ServiceID
			if serviceID == "" {
				serviceID = claims.Subject
			}
			c.Set(serviceIDContextKey, serviceID)
			log.Debug("Admin request authorized", zap.String("serviceID", serviceID))
			return next(c)
		}
	}
}

func tokenSnippet(tokenString string) string {
	const limit = 15
	if len(tokenString) > limit {
		return tokenString[:limit] + "..."
	}
	return tokenString
}
