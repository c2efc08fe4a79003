package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/colmadogutierrez/debtbook/pkg/config"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/kv"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/netprobe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTokenURL    = "https://idp.test/token"
	testUserInfoURL = "https://idp.test/userinfo"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// fakeIDP answers the token and userinfo endpoints.
type fakeIDP struct {
	mu           sync.Mutex
	tokenStatus  int
	tokenBody    string
	userStatus   int
	tokenForms   []url.Values
	userAuthHdrs []string
}

func newFakeIDP() *fakeIDP {
	return &fakeIDP{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"access-2","token_type":"Bearer"}`,
		userStatus:  http.StatusOK,
	}
}

func (f *fakeIDP) client() *http.Client {
	return &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch req.URL.String() {
		case testTokenURL:
			raw, _ := io.ReadAll(req.Body)
			form, _ := url.ParseQuery(string(raw))
			f.tokenForms = append(f.tokenForms, form)
			return jsonResponse(f.tokenStatus, f.tokenBody), nil
		case testUserInfoURL:
			f.userAuthHdrs = append(f.userAuthHdrs, req.Header.Get("Authorization"))
			if f.userStatus != http.StatusOK {
				return jsonResponse(f.userStatus, `{"error":{"code":401,"message":"Invalid Credentials"}}`), nil
			}
			return jsonResponse(http.StatusOK, `{"id":"u-1","email":"dueno@colmado.test","name":"Dueno"}`), nil
		}
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})}
}

func (f *fakeIDP) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokenForms), len(f.userAuthHdrs)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestTokenStore(t *testing.T, store kv.Store, idp *fakeIDP, online bool) *TokenStore {
	t.Helper()
	ts, err := NewTokenStore(TokenStoreParams{
		KV:     store,
		Logger: logger.Nop(),
		Probe:  netprobe.Static(online),
		Google: config.GoogleConfig{
			ClientID:         "client-id",
			TokenURL:         testTokenURL,
			UserInfoURL:      testUserInfoURL,
			RefreshThreshold: 10 * time.Minute,
		},
		HTTPClient: idp.client(),
		Clock:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return ts
}

func seedRecord(t *testing.T, store kv.Store, expiresIn time.Duration) StoredAuthData {
	t.Helper()
	record := StoredAuthData{
		User:           User{ID: "u-1", Email: "dueno@colmado.test"},
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		ExpirationDate: testNow.Add(expiresIn),
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), StorageKey, string(raw)))
	return record
}

func storedRecord(t *testing.T, store kv.Store) StoredAuthData {
	t.Helper()
	raw, found, err := store.Get(context.Background(), StorageKey)
	require.NoError(t, err)
	require.True(t, found)
	var record StoredAuthData
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	return record
}

func TestIsNearExpiry(t *testing.T) {
	exp := testNow.Add(time.Hour)
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before", exp.Add(-11 * time.Minute), false},
		{"exactly at threshold", exp.Add(-10 * time.Minute), true},
		{"inside threshold", exp.Add(-time.Minute), true},
		{"expired", exp.Add(time.Minute), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsNearExpiry(exp, tc.now, 10*time.Minute))
		})
	}
}

func TestNewTokenStore_Validation(t *testing.T) {
	_, err := NewTokenStore(TokenStoreParams{Logger: logger.Nop(), Google: config.GoogleConfig{TokenURL: "x", UserInfoURL: "y"}})
	require.Error(t, err)
	_, err = NewTokenStore(TokenStoreParams{KV: kv.NewMemoryStore(), Logger: logger.Nop(), Google: config.GoogleConfig{UserInfoURL: "y"}})
	require.Error(t, err)
}

func TestCheckAndRefresh_NoRecord(t *testing.T) {
	ts := newTestTokenStore(t, kv.NewMemoryStore(), newFakeIDP(), true)
	ok, err := ts.CheckAndRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckAndRefresh_FreshTokenUntouched(t *testing.T) {
	store := kv.NewMemoryStore()
	seedRecord(t, store, time.Hour)
	idp := newFakeIDP()
	ts := newTestTokenStore(t, store, idp, true)

	ok, err := ts.CheckAndRefresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	tokenCalls, userCalls := idp.calls()
	assert.Zero(t, tokenCalls)
	assert.Zero(t, userCalls)
}

func TestCheckAndRefresh_RefreshesNearExpiry(t *testing.T) {
	store := kv.NewMemoryStore()
	seedRecord(t, store, 5*time.Minute)
	idp := newFakeIDP()
	ts := newTestTokenStore(t, store, idp, true)

	ok, err := ts.CheckAndRefresh(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, idp.tokenForms, 1)
	form := idp.tokenForms[0]
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "refresh-1", form.Get("refresh_token"))
	assert.Equal(t, "client-id", form.Get("client_id"))
	assert.Equal(t, []string{"Bearer access-2"}, idp.userAuthHdrs, "profile is re-fetched with the new token")

	record := storedRecord(t, store)
	assert.Equal(t, "access-2", record.AccessToken)
	assert.Equal(t, "refresh-1", record.RefreshToken, "refresh token preserved when the provider omits it")
	assert.True(t, record.ExpirationDate.Equal(testNow.Add(DefaultTokenLifetime)))

	token, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
}

func TestCheckAndRefresh_UsesProviderExpiry(t *testing.T) {
	store := kv.NewMemoryStore()
	seedRecord(t, store, 0)
	idp := newFakeIDP()
	idp.tokenBody = `{"access_token":"access-3","refresh_token":"refresh-2","expires_in":7200,"token_type":"Bearer"}`
	ts := newTestTokenStore(t, store, idp, true)

	before := time.Now()
	ok, err := ts.CheckAndRefresh(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	record := storedRecord(t, store)
	assert.Equal(t, "refresh-2", record.RefreshToken)
	assert.WithinDuration(t, before.Add(2*time.Hour), record.ExpirationDate, time.Minute)
}

func TestCheckAndRefresh_OfflineKeepsStaleToken(t *testing.T) {
	store := kv.NewMemoryStore()
	seeded := seedRecord(t, store, time.Minute)
	idp := newFakeIDP()
	ts := newTestTokenStore(t, store, idp, false)

	ok, err := ts.CheckAndRefresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	tokenCalls, _ := idp.calls()
	assert.Zero(t, tokenCalls)
	assert.Equal(t, seeded.AccessToken, storedRecord(t, store).AccessToken)
}

func TestCheckAndRefresh_RefreshFailureIsSwallowed(t *testing.T) {
	store := kv.NewMemoryStore()
	seeded := seedRecord(t, store, time.Minute)
	idp := newFakeIDP()
	idp.tokenStatus = http.StatusBadRequest
	idp.tokenBody = `{"error":"invalid_grant"}`
	ts := newTestTokenStore(t, store, idp, true)

	ok, err := ts.CheckAndRefresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, seeded.AccessToken, storedRecord(t, store).AccessToken)
}

func TestCheckAndRefresh_ProfileFailureKeepsOldRecord(t *testing.T) {
	store := kv.NewMemoryStore()
	seeded := seedRecord(t, store, time.Minute)
	idp := newFakeIDP()
	idp.userStatus = http.StatusUnauthorized
	ts := newTestTokenStore(t, store, idp, true)

	ok, err := ts.CheckAndRefresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, seeded.AccessToken, storedRecord(t, store).AccessToken)
}

func TestSignInSessionLogout(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	idp := newFakeIDP()
	ts := newTestTokenStore(t, store, idp, true)

	record, err := ts.SignIn(ctx, "access-9", "refresh-9")
	require.NoError(t, err)
	assert.Equal(t, "dueno@colmado.test", record.User.Email)
	assert.True(t, record.ExpirationDate.Equal(testNow.Add(DefaultTokenLifetime)))
	assert.Equal(t, []string{"Bearer access-9"}, idp.userAuthHdrs)

	session, err := ts.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", session.User.ID)
	assert.False(t, session.NearExpiry)

	token, err := ts.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-9", token)

	require.NoError(t, ts.Logout(ctx))
	_, found, _ := store.Get(ctx, StorageKey)
	assert.False(t, found)

	_, err = ts.AccessToken(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = ts.Session(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	ok, err := ts.CheckAndRefresh(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignIn_RejectedTokenStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	idp := newFakeIDP()
	idp.userStatus = http.StatusUnauthorized
	ts := newTestTokenStore(t, store, idp, true)

	_, err := ts.SignIn(ctx, "bad", "refresh")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	_, found, _ := store.Get(ctx, StorageKey)
	assert.False(t, found)

	_, err = ts.SignIn(ctx, "", "refresh")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUnreadableRecordCountsAsSignedOut(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), StorageKey, `not-json`))
	ts := newTestTokenStore(t, store, newFakeIDP(), true)

	ok, err := ts.CheckAndRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
