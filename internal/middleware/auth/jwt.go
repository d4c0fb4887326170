package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthUser represents an authenticated caller from the JWT
type AuthUser struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// contextKey is used for storing user in context
type contextKey string

const (
	userContextKey contextKey = "authenticated_user"
)

// JWTConfig holds the configuration for JWT middleware
type JWTConfig struct {
	Secret    string
	Logger    *zap.Logger
	SkipPaths []string // Paths to skip JWT validation
}

// JWTMiddleware validates HMAC-signed bearer tokens and stores the caller in
// the request context.
func JWTMiddleware(config JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, skipPath := range config.SkipPaths {
				if strings.HasPrefix(path, skipPath) {
					return next(c)
				}
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				config.Logger.Warn("Missing authorization header",
					zap.String("path", path),
					zap.String("method", c.Request().Method))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Authorization header required",
					"code":  "MISSING_AUTH_HEADER",
				})
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				config.Logger.Warn("Invalid authorization header format",
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid authorization header format. Expected: Bearer <token>",
					"code":  "INVALID_AUTH_FORMAT",
				})
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(config.Secret), nil
			})
			if err != nil {
				config.Logger.Warn("JWT validation failed",
					zap.Error(err),
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid or expired token",
					"code":  "INVALID_TOKEN",
				})
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				config.Logger.Warn("Invalid JWT claims",
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid token claims",
					"code":  "INVALID_CLAIMS",
				})
			}

			sub, _ := claims.GetSubject()
			email, _ := claims["email"].(string)
			role, _ := claims["role"].(string)
			authUser := &AuthUser{UserID: sub, Email: email, Role: role}

			ctx := context.WithValue(c.Request().Context(), userContextKey, authUser)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", sub)

			config.Logger.Debug("User authenticated successfully",
				zap.String("user_id", sub),
				zap.String("role", role),
				zap.String("path", path))

			return next(c)
		}
	}
}

// RequireRole rejects authenticated callers whose role claim is not role.
// It must run after JWTMiddleware.
func RequireRole(role string, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := GetUserFromContext(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Authentication required",
					"code":  "AUTH_REQUIRED",
				})
			}
			if user.Role != role {
				logger.Warn("Role check failed",
					zap.String("user_id", user.UserID),
					zap.String("role", user.Role),
					zap.String("required_role", role),
					zap.String("path", c.Request().URL.Path))
				return c.JSON(http.StatusForbidden, echo.Map{
					"error": "Insufficient permissions",
					"code":  "FORBIDDEN",
				})
			}
			return next(c)
		}
	}
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(c echo.Context) (*AuthUser, error) {
	user, ok := c.Request().Context().Value(userContextKey).(*AuthUser)
	if !ok || user == nil {
		return nil, fmt.Errorf("no authenticated user found in context")
	}
	return user, nil
}
