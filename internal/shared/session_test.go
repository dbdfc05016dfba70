package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func commitAndCookie(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, req, sess))
	for _, c := range rec.Result().Cookies() {
		if c.Name == sm.CookieName() {
			return c
		}
	}
	return nil
}

func TestSessionRoundTripKeepsUser(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(42)
	sess.Set(SessionRoleKey, "7")
	cookie := commitAndCookie(t, sm, sess)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)

	id, ok := loaded.UserID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "7", loaded.Get(SessionRoleKey))
}

func TestAnonymousSessionIsNotPersisted(t *testing.T) {
	sm, mr := newTestManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, commitAndCookie(t, sm, sess))
	assert.Empty(t, mr.Keys())
}

func TestUnknownCookieGetsFreshID(t *testing.T) {
	sm, _ := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "attacker-chosen"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	_, ok := sess.UserID()
	assert.False(t, ok)
}

func TestDestroyRemovesStoredSession(t *testing.T) {
	sm, mr := newTestManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(1)
	commitAndCookie(t, sm, sess)
	require.True(t, mr.Exists("session:"+sess.ID))

	sm.Destroy(sess)
	sm.Destroy(sess)
	cookie := commitAndCookie(t, sm, sess)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.False(t, mr.Exists("session:"+sess.ID))
}

func TestRenewRotatesIdentifier(t *testing.T) {
	sm, mr := newTestManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set("k", "v")
	commitAndCookie(t, sm, sess)
	oldID := sess.ID

	sm.Renew(sess)
	sess.SetUser(9)
	cookie := commitAndCookie(t, sm, sess)
	require.NotNil(t, cookie)
	assert.NotEqual(t, oldID, cookie.Value)
	assert.False(t, mr.Exists("session:"+oldID))
	assert.True(t, mr.Exists("session:"+cookie.Value))
}

func TestCurrentUserID(t *testing.T) {
	_, ok := CurrentUserID(context.Background())
	assert.False(t, ok)

	sess := &Session{values: map[string]string{}}
	sess.userID = "not-a-number"
	_, ok = CurrentUserID(ContextWithSession(context.Background(), sess))
	assert.False(t, ok)

	sess.SetUser(5)
	id, ok := CurrentUserID(ContextWithSession(context.Background(), sess))
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	sess.ClearUser()
	_, ok = CurrentUserID(ContextWithSession(context.Background(), sess))
	assert.False(t, ok)
}
