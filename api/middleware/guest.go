package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	GuestIDHeader = "X-Guest-Id"
	GuestIDCookie = "sf_guest_id"
)

// Guest attaches the anonymous session marker sent by the web client. The
// header wins over the cookie. A missing or malformed marker is replaced by
// a fresh one, returned in both the cookie and the response header, so a
// first visit can build a cart straight away.
func Guest(logg *logger.Logger, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guestID, ok := guestFromRequest(r)
			if !ok {
				guestID = uuid.NewString()
				http.SetCookie(w, guestCookie(r, guestID, ttl))
				if logg != nil {
					logg.Debug(logg.WithGuestID(r.Context(), guestID), "guest session started")
				}
			}
			w.Header().Set(GuestIDHeader, guestID)

			ctx := WithGuestID(r.Context(), guestID)
			if logg != nil {
				ctx = logg.WithGuestID(ctx, guestID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// guestFromRequest accepts only UUIDs so a client cannot address another
// shopper's key space with crafted values.
func guestFromRequest(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get(GuestIDHeader))
	if raw == "" {
		if cookie, err := r.Cookie(GuestIDCookie); err == nil {
			raw = strings.TrimSpace(cookie.Value)
		}
	}
	if raw == "" {
		return "", false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func guestCookie(r *http.Request, guestID string, ttl time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     GuestIDCookie,
		Value:    guestID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"),
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl / time.Second)
		cookie.Expires = time.Now().Add(ttl).UTC()
	}
	return cookie
}
