package permissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed credential store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store over the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Get returns the credential for the pair, or (nil, nil) when absent.
func (s *PGStore) Get(ctx context.Context, userID, capability string) (*Credential, error) {
	var cred Credential
	var expiresAt, lastUsedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, app_id, app_name, coalesce(access_token, ''), coalesce(refresh_token, ''),
		        expires_at, scopes, is_connected, connected_at, last_used_at
		 FROM user_app_permissions WHERE user_id = $1 AND app_id = $2`,
		userID, capability,
	).Scan(&cred.UserID, &cred.Capability, &cred.AppName, &cred.AccessToken, &cred.RefreshToken,
		&expiresAt, &cred.Scopes, &cred.IsConnected, &cred.ConnectedAt, &lastUsedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential query failed: %w", err)
	}

	if expiresAt != nil {
		cred.ExpiresAt = *expiresAt
	}
	if lastUsedAt != nil {
		cred.LastUsedAt = *lastUsedAt
	}
	return &cred, nil
}

// UpdateTokens persists a freshly refreshed access token.
func (s *PGStore) UpdateTokens(ctx context.Context, userID, capability, accessToken string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE user_app_permissions
		 SET access_token = $3, expires_at = $4, last_used_at = now()
		 WHERE user_id = $1 AND app_id = $2`,
		userID, capability, accessToken, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("token update failed: %w", err)
	}
	return nil
}

// TouchLastUsed records that the credential was just handed out.
func (s *PGStore) TouchLastUsed(ctx context.Context, userID, capability string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE user_app_permissions SET last_used_at = now()
		 WHERE user_id = $1 AND app_id = $2`,
		userID, capability,
	)
	if err != nil {
		return fmt.Errorf("last-used update failed: %w", err)
	}
	return nil
}

// Disconnect clears the stored tokens and marks the capability
// disconnected. The row is kept so the connection history survives.
func (s *PGStore) Disconnect(ctx context.Context, userID, capability string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE user_app_permissions
		 SET is_connected = false, access_token = NULL, refresh_token = NULL, expires_at = NULL
		 WHERE user_id = $1 AND app_id = $2`,
		userID, capability,
	)
	if err != nil {
		return fmt.Errorf("disconnect failed: %w", err)
	}
	return nil
}

// List returns all credential records for the user, newest first.
func (s *PGStore) List(ctx context.Context, userID string) ([]Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, app_id, app_name, coalesce(access_token, ''), coalesce(refresh_token, ''),
		        expires_at, scopes, is_connected, connected_at, last_used_at
		 FROM user_app_permissions WHERE user_id = $1 ORDER BY connected_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("credential list failed: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var cred Credential
		var expiresAt, lastUsedAt *time.Time
		if err := rows.Scan(&cred.UserID, &cred.Capability, &cred.AppName, &cred.AccessToken,
			&cred.RefreshToken, &expiresAt, &cred.Scopes, &cred.IsConnected,
			&cred.ConnectedAt, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("credential scan failed: %w", err)
		}
		if expiresAt != nil {
			cred.ExpiresAt = *expiresAt
		}
		if lastUsedAt != nil {
			cred.LastUsedAt = *lastUsedAt
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}
