// Package auth keeps the remote-account session: persisted tokens, proactive
// refresh before expiry and the user profile.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/colmadogutierrez/debtbook/pkg/config"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/kv"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/netprobe"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

const (
	// DefaultTokenLifetime applies when the provider omits expires_in.
	DefaultTokenLifetime    = 3599 * time.Second
	defaultRefreshThreshold = 10 * time.Minute
)

// IsNearExpiry reports whether now is within threshold of expiration.
func IsNearExpiry(expiration, now time.Time, threshold time.Duration) bool {
	return !now.Before(expiration.Add(-threshold))
}

// TokenStoreParams wires a TokenStore.
type TokenStoreParams struct {
	KV         kv.Store
	Logger     *logger.Logger
	Probe      netprobe.Prober
	Google     config.GoogleConfig
	HTTPClient *http.Client
	Clock      func() time.Time
}

// TokenStore is safe for concurrent use.
type TokenStore struct {
	kv         kv.Store
	logg       *logger.Logger
	probe      netprobe.Prober
	oauth      oauth2.Config
	userInfo   string
	threshold  time.Duration
	httpClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	cached *StoredAuthData
}

func NewTokenStore(params TokenStoreParams) (*TokenStore, error) {
	if params.KV == nil {
		return nil, fmt.Errorf("kv store is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Google.TokenURL == "" {
		return nil, fmt.Errorf("token url is required")
	}
	if params.Google.UserInfoURL == "" {
		return nil, fmt.Errorf("userinfo url is required")
	}
	probe := params.Probe
	if probe == nil {
		probe = netprobe.Static(true)
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		timeout := params.Google.HTTPTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	threshold := params.Google.RefreshThreshold
	if threshold <= 0 {
		threshold = defaultRefreshThreshold
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &TokenStore{
		kv:    params.KV,
		logg:  params.Logger,
		probe: probe,
		oauth: oauth2.Config{
			ClientID: params.Google.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  params.Google.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfo:   params.Google.UserInfoURL,
		threshold:  threshold,
		httpClient: httpClient,
		now:        now,
	}, nil
}

// CheckAndRefresh reports whether a session exists, refreshing it first when
// it is close to expiry. Refresh problems are logged and leave the stale
// session in place; the next remote call will then fail with an auth error.
func (s *TokenStore) CheckAndRefresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	if !IsNearExpiry(record.ExpirationDate, s.now(), s.threshold) {
		return true, nil
	}

	ctx = s.logg.WithField(ctx, "expires_at", record.ExpirationDate.Format(time.RFC3339))
	if !s.probe.Online(ctx) {
		s.logg.Info(ctx, "offline; keeping current access token")
		return true, nil
	}

	refreshed, err := s.refresh(ctx, *record)
	if err != nil {
		s.logg.Error(ctx, "access token refresh failed", err)
		return true, nil
	}
	if err := s.save(ctx, refreshed); err != nil {
		s.logg.Error(ctx, "persist refreshed session failed", err)
		return true, nil
	}
	s.logg.Info(ctx, "access token refreshed")
	return true, nil
}

func (s *TokenStore) refresh(ctx context.Context, record StoredAuthData) (*StoredAuthData, error) {
	if record.RefreshToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no refresh token stored")
	}
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.oauth.TokenSource(oauthCtx, &oauth2.Token{RefreshToken: record.RefreshToken}).Token()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "refresh access token")
	}

	user, err := s.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = record.RefreshToken
	}
	expiration := token.Expiry
	if expiration.IsZero() {
		expiration = s.now().Add(DefaultTokenLifetime)
	}
	return &StoredAuthData{
		User:           *user,
		AccessToken:    token.AccessToken,
		RefreshToken:   refreshToken,
		ExpirationDate: expiration,
	}, nil
}

// SignIn stores the tokens obtained from the consent flow after fetching the
// user's profile with them.
func (s *TokenStore) SignIn(ctx context.Context, accessToken, refreshToken string) (*StoredAuthData, error) {
	if accessToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "access token is required")
	}
	user, err := s.fetchUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	record := &StoredAuthData{
		User:           *user,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpirationDate: s.now().Add(DefaultTokenLifetime),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "user_email", user.Email), "signed in")
	return record, nil
}

// AccessToken returns the persisted access token without refreshing it.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if record == nil || record.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in")
	}
	return record.AccessToken, nil
}

// Session returns the current session without tokens.
func (s *TokenStore) Session(ctx context.Context) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in")
	}
	return &SessionView{
		User:           record.User,
		ExpirationDate: record.ExpirationDate,
		NearExpiry:     IsNearExpiry(record.ExpirationDate, s.now(), s.threshold),
	}, nil
}

// Logout forgets the session.
func (s *TokenStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, StorageKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete auth record")
	}
	s.cached = nil
	s.logg.Info(ctx, "signed out")
	return nil
}

func (s *TokenStore) fetchUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfo, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build userinfo request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "fetch user profile")
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "user profile rejected the access token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteAPI, err, "fetch user profile")
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteAPI, err, "decode user profile")
	}
	return &user, nil
}

// load must be called with mu held.
func (s *TokenStore) load(ctx context.Context) (*StoredAuthData, error) {
	if s.cached != nil {
		return s.cached, nil
	}
	raw, found, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read auth record")
	}
	if !found {
		return nil, nil
	}
	var record StoredAuthData
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ignoring unreadable auth record")
		return nil, nil
	}
	s.cached = &record
	return s.cached, nil
}

// save must be called with mu held.
func (s *TokenStore) save(ctx context.Context, record *StoredAuthData) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode auth record")
	}
	if err := s.kv.Set(ctx, StorageKey, string(raw)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write auth record")
	}
	s.cached = record
	return nil
}
