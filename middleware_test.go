package scribe_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/panyam/scribe"
)

func (app *testApp) serve(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	return w
}

func TestAuthorizationHeaderLogin(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndVerify(t, "bearer@example.com")

	// The cookie value is the JWT, usable as a bearer token by API clients.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	w := app.serve(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with a bearer token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGarbageTokensRejected(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "victim@example.com")

	foreign := &scribe.SessionIssuer{SecretKey: "some-other-secret"}

	tests := []struct {
		name  string
		apply func(t *testing.T, r *http.Request)
	}{
		{
			name:  "no credentials",
			apply: func(t *testing.T, r *http.Request) {},
		},
		{
			name: "garbage cookie",
			apply: func(t *testing.T, r *http.Request) {
				r.AddCookie(&http.Cookie{Name: scribe.SessionCookieName, Value: "not.a.jwt"})
			},
		},
		{
			name: "garbage bearer token",
			apply: func(t *testing.T, r *http.Request) {
				r.Header.Set("Authorization", "Bearer not.a.jwt")
			},
		},
		{
			name: "token signed with another key",
			apply: func(t *testing.T, r *http.Request) {
				token, err := foreign.Issue(&scribe.User{ID: "someone"})
				if err != nil {
					t.Fatalf("Issue: %v", err)
				}
				r.AddCookie(&http.Cookie{Name: scribe.SessionCookieName, Value: token})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			tt.apply(t, req)
			w := app.serve(t, req)
			assertMessage(t, w, http.StatusUnauthorized, "User is not authenticated.")
		})
	}
}

func TestSessionForDeletedUser(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "gone@example.com")

	// A well-signed token for a user id that is not on record must not
	// authenticate.
	token, err := app.issuer.Issue(&scribe.User{ID: "never-existed"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: scribe.SessionCookieName, Value: token})
	w := app.serve(t, req)
	assertMessage(t, w, http.StatusUnauthorized, "User is not authenticated.")
}
