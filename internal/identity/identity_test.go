package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preplab/preplab/internal/identity"
)

func TestResolve_AuthenticatedWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: identity.CookieName, Value: uuid.NewString()})
	w := httptest.NewRecorder()

	id, fresh := identity.Resolve(w, r, "account-123")
	assert.Equal(t, "account-123", id)
	assert.False(t, fresh)
	assert.Empty(t, w.Result().Cookies())
}

func TestResolve_CookieReused(t *testing.T) {
	existing := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: identity.CookieName, Value: existing})
	w := httptest.NewRecorder()

	id, fresh := identity.Resolve(w, r, "")
	assert.Equal(t, existing, id)
	assert.False(t, fresh)
}

func TestResolve_MintsAndPersists(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	id, fresh := identity.Resolve(w, r, "")
	assert.True(t, fresh)

	_, err := uuid.Parse(id)
	require.NoError(t, err, "minted id must be uuid-shaped")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, identity.CookieName, cookies[0].Name)
	assert.Equal(t, id, cookies[0].Value)
	assert.Greater(t, cookies[0].MaxAge, 0)
}

func TestResolve_MalformedCookieReplaced(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: identity.CookieName, Value: "not-a-uuid"})
	w := httptest.NewRecorder()

	id, fresh := identity.Resolve(w, r, "")
	assert.True(t, fresh)
	assert.NotEqual(t, "not-a-uuid", id)
}
