package middleware

import (
	"context"
	"net/http"
	"strings"
)

type sessionKey struct{}

// Session stores the caller's chat session id in the request context. Browsers cannot
// set headers on websocket upgrades, so the sessionId query parameter is accepted too.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
		if sessionID == "" {
			sessionID = strings.TrimSpace(r.URL.Query().Get("sessionId"))
		}
		if sessionID != "" {
			r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, sessionID))
		}
		next.ServeHTTP(w, r)
	})
}

// SessionID returns the session id stored by Session, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
