package scribe

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type ctxUserKey struct{}

// Middleware is the authentication gate. It resolves the logged-in user
// from the server-side session, the session cookie, or the Authorization
// header, in that order, and attaches the resolved record to the request.
type Middleware struct {
	Users    UserStore
	Sessions *SessionIssuer
	Logger   *zap.Logger
}

// UserFrom returns the user attached to the request context, if any.
func UserFrom(ctx context.Context) *User {
	u, _ := ctx.Value(ctxUserKey{}).(*User)
	return u
}

// ExtractUser resolves the logged-in user when present but never rejects
// the request. Handlers that require a user use EnsureUser instead.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := m.resolveUser(r); u != nil {
			r = r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, u))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser rejects the request with 401 unless a valid session resolves
// to an existing user.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := m.resolveUser(r)
		if u == nil {
			responder := &ErrorResponder{Logger: m.Logger}
			responder.Respond(w, r, E(KindUnauthorized, "User is not authenticated."))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, u)))
	})
}

func (m *Middleware) resolveUser(r *http.Request) *User {
	userID := m.loggedInUserID(r)
	if userID == "" {
		return nil
	}
	u, err := m.Users.FindByID(r.Context(), userID)
	if err != nil {
		m.Logger.Warn("session resolved to missing user",
			zap.String("userID", userID),
			zap.Error(err))
		return nil
	}
	return u
}

func (m *Middleware) loggedInUserID(r *http.Request) string {
	// Server-side session first.
	if s := m.Sessions.Session; s != nil {
		if id := s.GetString(r.Context(), sessionUserKey); id != "" {
			return id
		}
	}

	// Then the cookie, then the Authorization header.
	var candidates []string
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		candidates = append(candidates, cookie.Value)
	}
	for _, h := range r.Header.Values("Authorization") {
		const prefix = "Bearer "
		if len(h) > len(prefix) && h[:len(prefix)] == prefix {
			candidates = append(candidates, h[len(prefix):])
		}
	}

	for _, token := range candidates {
		userID, err := m.Sessions.Verify(token)
		if err == nil && userID != "" {
			return userID
		}
		if err != nil {
			m.Logger.Debug("session token rejected", zap.Error(err))
		}
	}
	return ""
}
