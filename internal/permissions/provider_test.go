package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for one credential record.
type fakeStore struct {
	cred *Credential

	getErr       error
	updateErr    error
	touchErr     error
	disconnects  int
	touches      int
	updatedToken string
	updatedExp   time.Time
}

func (f *fakeStore) Get(context.Context, string, string) (*Credential, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.cred, nil
}

func (f *fakeStore) UpdateTokens(_ context.Context, _, _, accessToken string, expiresAt time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedToken = accessToken
	f.updatedExp = expiresAt
	return nil
}

func (f *fakeStore) TouchLastUsed(context.Context, string, string) error {
	f.touches++
	return f.touchErr
}

func (f *fakeStore) Disconnect(context.Context, string, string) error {
	f.disconnects++
	return nil
}

func (f *fakeStore) List(context.Context, string) ([]Credential, error) {
	if f.cred == nil {
		return nil, nil
	}
	return []Credential{*f.cred}, nil
}

// fakeRefresher scripts the token exchange.
type fakeRefresher struct {
	token     string
	expiresAt time.Time
	err       error
	calls     int
}

func (f *fakeRefresher) Refresh(context.Context, string) (string, time.Time, error) {
	f.calls++
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return f.token, f.expiresAt, nil
}

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func connectedCred(expiresAt time.Time) *Credential {
	return &Credential{
		UserID:       "user-1",
		Capability:   "gmail",
		AccessToken:  "old-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    expiresAt,
		IsConnected:  true,
	}
}

func newTestProvider(store Store, refresher Refresher) *Provider {
	p := NewProvider(store, refresher)
	p.SetClock(func() time.Time { return testNow })
	return p
}

func TestAccessTokenFreshTokenIsHandedOut(t *testing.T) {
	// 61 seconds of life left: outside the skew window, no refresh.
	store := &fakeStore{cred: connectedCred(testNow.Add(61 * time.Second))}
	refresher := &fakeRefresher{}
	p := newTestProvider(store, refresher)

	token, err := p.AccessToken(context.Background(), "user-1", "gmail")
	require.NoError(t, err)

	assert.Equal(t, "old-token", token)
	assert.Equal(t, 0, refresher.calls)
	assert.Equal(t, 1, store.touches)
}

func TestAccessTokenNearExpiryRefreshes(t *testing.T) {
	// 59 seconds left: inside the skew window, must refresh first.
	store := &fakeStore{cred: connectedCred(testNow.Add(59 * time.Second))}
	refresher := &fakeRefresher{token: "new-token", expiresAt: testNow.Add(time.Hour)}
	p := newTestProvider(store, refresher)

	token, err := p.AccessToken(context.Background(), "user-1", "gmail")
	require.NoError(t, err)

	assert.Equal(t, "new-token", token)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, "new-token", store.updatedToken)
	assert.Equal(t, testNow.Add(time.Hour), store.updatedExp)
}

func TestAccessTokenRefreshFailureDisconnects(t *testing.T) {
	store := &fakeStore{cred: connectedCred(testNow.Add(-time.Minute))}
	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	p := newTestProvider(store, refresher)

	// Unavailability is an empty token, never an error.
	token, err := p.AccessToken(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "", token)
	assert.Equal(t, 1, store.disconnects)
}

func TestAccessTokenMissingRecordReturnsEmpty(t *testing.T) {
	store := &fakeStore{cred: nil}
	p := newTestProvider(store, &fakeRefresher{})

	token, err := p.AccessToken(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "", token)
}

func TestAccessTokenDisconnectedReturnsEmpty(t *testing.T) {
	cred := connectedCred(testNow.Add(time.Hour))
	cred.IsConnected = false
	store := &fakeStore{cred: cred}
	p := newTestProvider(store, &fakeRefresher{})

	token, err := p.AccessToken(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "", token)
}

func TestAccessTokenNoRefreshTokenReturnsEmpty(t *testing.T) {
	cred := connectedCred(testNow.Add(10 * time.Second))
	cred.RefreshToken = ""
	store := &fakeStore{cred: cred}
	refresher := &fakeRefresher{token: "new-token"}
	p := newTestProvider(store, refresher)

	token, err := p.AccessToken(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "", token)
	assert.Equal(t, 0, refresher.calls)
}

func TestAccessTokenFailedTouchStillReturnsToken(t *testing.T) {
	store := &fakeStore{
		cred:     connectedCred(testNow.Add(time.Hour)),
		touchErr: errors.New("db busy"),
	}
	p := newTestProvider(store, &fakeRefresher{})

	token, err := p.AccessToken(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "old-token", token)
}

func TestAccessTokenStoreErrorPropagates(t *testing.T) {
	store := &fakeStore{getErr: errors.New("db down")}
	p := newTestProvider(store, &fakeRefresher{})

	_, err := p.AccessToken(context.Background(), "user-1", "gmail")
	assert.Error(t, err)
}

func TestHasPermission(t *testing.T) {
	store := &fakeStore{cred: connectedCred(testNow.Add(time.Hour))}
	p := newTestProvider(store, &fakeRefresher{})

	connected, err := p.HasPermission(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.True(t, connected)

	store.cred.IsConnected = false
	connected, err = p.HasPermission(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.False(t, connected)

	store.cred = nil
	connected, err = p.HasPermission(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.False(t, connected)
}
