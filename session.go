package scribe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the HTTP-only cookie carrying the session token.
const SessionCookieName = "token"

const sessionUserKey = "loggedInUserId"

// SessionIssuer mints and checks the signed session credential bound to a
// user. The same token is attached as an HTTP-only cookie and returned in
// the JSON body so both browser and API clients can use it.
type SessionIssuer struct {
	// SecretKey signs tokens. Issuance fails fatally when absent.
	SecretKey string

	Issuer string

	// TokenTTL bounds the JWT itself (hours by default).
	TokenTTL time.Duration

	// CookieTTL bounds the cookie (days by default, configurable).
	CookieTTL time.Duration

	// Session mirrors the logged-in user id server-side so non-API page
	// loads can skip JWT verification.
	Session *scs.SessionManager
}

// EnsureDefaults fills in reasonable values for anything unset.
func (s *SessionIssuer) EnsureDefaults() *SessionIssuer {
	if s.Issuer == "" {
		s.Issuer = "Scribe-Issuer"
	}
	if s.TokenTTL <= 0 {
		s.TokenTTL = 5 * time.Hour
	}
	if s.CookieTTL <= 0 {
		s.CookieTTL = 7 * 24 * time.Hour
	}
	return s
}

// Issue signs a session token for the user.
func (s *SessionIssuer) Issue(u *User) (string, error) {
	s.EnsureDefaults()
	if s.SecretKey == "" {
		return "", E(KindInternal, "JWT secret key is not defined.")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": u.ID,
		"iss": s.Issuer,
		"iat": now.Unix(),
		"exp": now.Add(s.TokenTTL).Unix(),
	})
	return token.SignedString([]byte(s.SecretKey))
}

// Verify decodes a session token and returns the user id it is bound to.
func (s *SessionIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.SecretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("subject not found")
	}
	return sub, nil
}

// SendToken issues a session for the user, attaches it as the session
// cookie, records it in the server-side session, and writes the JSON
// envelope with the token included.
func (s *SessionIssuer) SendToken(w http.ResponseWriter, r *http.Request, u *User, status int, message string) error {
	s.EnsureDefaults()
	tokenString, err := s.Issue(u)
	if err != nil {
		return err
	}

	if s.Session != nil {
		s.Session.Put(r.Context(), sessionUserKey, u.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(s.CookieTTL),
		MaxAge:   int(s.CookieTTL / time.Second),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": message,
		"user":    u,
		"token":   tokenString,
	})
}

// Clear logs the user out: the cookie is overwritten with an empty value
// that is already expired and the server-side session is dropped.
func (s *SessionIssuer) Clear(w http.ResponseWriter, r *http.Request) {
	if s.Session != nil {
		s.Session.Clear(r.Context())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now(),
		MaxAge:   -1,
	})
}
