package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// UserContextKey holds the authenticated user for the request.
	UserContextKey ContextKey = "user"
)

// AuthUser is the identity resolved from a session token.
type AuthUser struct {
	ID    string
	Name  string
	Email string
}

// RequireAuth validates the Bearer session token and stores the
// resolved user in the request context.
func RequireAuth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			user, err := parseSessionToken(tokenParts[1], jwtSecret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(UserContextKey), user)
			return next(c)
		}
	}
}

// parseSessionToken validates the JWT and extracts the user claims.
func parseSessionToken(tokenString, secret string) (*AuthUser, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing subject")
	}

	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)

	return &AuthUser{ID: sub, Name: name, Email: email}, nil
}

// currentUser returns the authenticated user set by RequireAuth.
func currentUser(c echo.Context) (*AuthUser, error) {
	user, ok := c.Get(string(UserContextKey)).(*AuthUser)
	if !ok || user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}
	return user, nil
}

// RateLimitPerUser throttles a route per authenticated user. Limiters
// live for the process lifetime; chat traffic per user is low enough
// that the map never needs eviction.
func RateLimitPerUser(requestsPerMin int) echo.MiddlewareFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(userID string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		limiter, ok := limiters[userID]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), requestsPerMin)
			limiters[userID] = limiter
		}
		return limiter
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := currentUser(c)
			if err != nil {
				return err
			}
			if !limiterFor(user.ID).Allow() {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, slow down")
			}
			return next(c)
		}
	}
}
