package permissions

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleRefresher exchanges Google OAuth refresh tokens for fresh
// access tokens using the standard token endpoint.
type GoogleRefresher struct {
	config *oauth2.Config
}

// NewGoogleRefresher creates a refresher for the given OAuth client.
func NewGoogleRefresher(clientID, clientSecret string) *GoogleRefresher {
	return &GoogleRefresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
		},
	}
}

// Refresh performs the refresh-token exchange.
func (r *GoogleRefresher) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	source := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := source.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh token exchange failed: %w", err)
	}

	return token.AccessToken, token.Expiry, nil
}
