package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef")

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(NewMemoryStore(time.Hour), "session", time.Hour, testKey)
	require.NoError(t, err)
	return m
}

func newTestContext(cookies ...*http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestNewManagerRejectsBadKey(t *testing.T) {
	_, err := NewManager(NewMemoryStore(time.Hour), "session", time.Hour, []byte("short"))
	require.Error(t, err)
}

func TestSealUnsealRoundTrip(t *testing.T) {
	m := newTestManager(t)

	sealed, err := m.seal("session-id-1")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "session-id-1")

	id, err := m.unseal(sealed)
	require.NoError(t, err)
	assert.Equal(t, "session-id-1", id)
}

func TestUnsealRejectsTampering(t *testing.T) {
	m := newTestManager(t)

	sealed, err := m.seal("session-id-1")
	require.NoError(t, err)

	_, err = m.unseal("x" + sealed[1:])
	assert.Error(t, err)

	_, err = m.unseal("not-a-sealed-value")
	assert.Error(t, err)
}

func TestLoadCreatesSessionAndSetsCookie(t *testing.T) {
	m := newTestManager(t)
	c, rec := newTestContext()

	sess, err := m.Load(c)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotEmpty(t, sess.ID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	id, err := m.unseal(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, id)
}

func TestLoadReturnsStoredSession(t *testing.T) {
	m := newTestManager(t)

	c, rec := newTestContext()
	created, err := m.Load(c)
	require.NoError(t, err)
	require.NoError(t, m.Save(c.Request().Context(), created))

	c2, rec2 := newTestContext(rec.Result().Cookies()...)
	loaded, err := m.Load(c2)
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Empty(t, rec2.Result().Cookies(), "existing session must not reissue the cookie")
}

func TestLoadDiscardsForgedCookie(t *testing.T) {
	m := newTestManager(t)

	c, rec := newTestContext(&http.Cookie{Name: "session", Value: "forged"})
	sess, err := m.Load(c)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, rec.Result().Cookies(), 1, "forged cookie must be replaced")
}

func TestPeekNeverCreates(t *testing.T) {
	m := newTestManager(t)

	c, rec := newTestContext()
	sess, err := m.Peek(c)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Empty(t, rec.Result().Cookies())

	// A sealed cookie pointing at a removed session also yields nil.
	c2, rec2 := newTestContext()
	created, err := m.Load(c2)
	require.NoError(t, err)
	require.NoError(t, m.Save(c2.Request().Context(), created))
	require.NoError(t, m.Remove(c2.Request().Context(), created))

	c3, _ := newTestContext(rec2.Result().Cookies()...)
	sess, err = m.Peek(c3)
	require.NoError(t, err)
	assert.Nil(t, sess)
}
