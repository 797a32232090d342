// Package identity supplies a stable user identifier for variant
// lookups: an authenticated id when present, otherwise an anonymous
// uuid4 persisted in a long-lived cookie.
package identity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CookieName holds the anonymous visitor id.
const CookieName = "preplab_uid"

// cookieMaxAge keeps the anonymous id stable for a year.
const cookieMaxAge = int(365 * 24 * time.Hour / time.Second)

// Resolve returns the stable identifier for a request. Precedence:
// authenticated id > cookie-stored anonymous id > freshly generated
// anonymous id. When an id is minted it is written back as a cookie;
// the second return reports that case.
func Resolve(w http.ResponseWriter, r *http.Request, authenticatedID string) (string, bool) {
	if authenticatedID != "" {
		return authenticatedID, false
	}

	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value, false
		}
		// A malformed cookie is replaced rather than trusted.
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, true
}
