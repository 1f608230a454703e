package scribe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/panyam/scribe"
	"github.com/panyam/scribe/stores/mem"
)

// captureDispatcher records dispatched codes and links instead of sending
// anything, and can be told to fail.
type captureDispatcher struct {
	mu       sync.Mutex
	codes    []int
	links    []string
	failCode bool
	failLink bool
}

func (d *captureDispatcher) SendCode(ctx context.Context, channel scribe.Channel, u *scribe.User, code int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCode {
		return fmt.Errorf("transport down")
	}
	d.codes = append(d.codes, code)
	return nil
}

func (d *captureDispatcher) SendResetLink(ctx context.Context, email, link string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failLink {
		return fmt.Errorf("transport down")
	}
	d.links = append(d.links, link)
	return nil
}

func (d *captureDispatcher) lastCode(t *testing.T) int {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.codes) == 0 {
		t.Fatal("no code was dispatched")
	}
	return d.codes[len(d.codes)-1]
}

func (d *captureDispatcher) lastLink(t *testing.T) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.links) == 0 {
		t.Fatal("no reset link was dispatched")
	}
	return d.links[len(d.links)-1]
}

// testApp wires the full handler stack onto in-memory stores with a
// controllable clock.
type testApp struct {
	users      *mem.UserStore
	notes      *mem.NoteStore
	dispatcher *captureDispatcher
	issuer     *scribe.SessionIssuer
	handler    http.Handler

	mu  sync.Mutex
	now time.Time
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	app := &testApp{
		users:      mem.NewUserStore(),
		notes:      mem.NewNoteStore(),
		dispatcher: &captureDispatcher{},
		now:        time.Now(),
	}
	logger := zap.NewNop()
	app.issuer = (&scribe.SessionIssuer{SecretKey: "test-secret"}).EnsureDefaults()
	server := &scribe.Server{
		Auth: &scribe.Auth{
			Users:       app.users,
			Dispatcher:  app.dispatcher,
			Sessions:    app.issuer,
			FrontendURL: "http://localhost:3000",
			Logger:      logger,
			Now:         app.clock,
		},
		Notes:  &scribe.Notes{Store: app.notes, Logger: logger},
		Gate:   &scribe.Middleware{Users: app.users, Sessions: app.issuer, Logger: logger},
		Logger: logger,
	}
	app.handler = server.Handler()
	return app
}

func (app *testApp) clock() time.Time {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.now
}

func (app *testApp) advance(d time.Duration) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.now = app.now.Add(d)
}

func (app *testApp) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, w.Body.String())
	}
	return body
}

func assertMessage(t *testing.T, w *httptest.ResponseRecorder, status int, message string) map[string]any {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d (body: %s)", status, w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["message"] != message {
		t.Fatalf("expected message %q, got %q", message, body["message"])
	}
	return body
}

func registerBody(email string) map[string]any {
	return map[string]any{
		"name":               "Johnny Appleseed",
		"email":              email,
		"phone":              "+15550001111",
		"password":           "supersecret",
		"dateOfBirth":        "1990-04-12",
		"verificationMethod": "email",
	}
}

func (app *testApp) register(t *testing.T, email string) int {
	t.Helper()
	w := app.do(t, http.MethodPost, "/api/v1/register", registerBody(email))
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed with status %d: %s", w.Code, w.Body.String())
	}
	return app.dispatcher.lastCode(t)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == scribe.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

// registerAndVerify runs the happy path and returns the session cookie.
func (app *testApp) registerAndVerify(t *testing.T, email string) *http.Cookie {
	t.Helper()
	code := app.register(t, email)
	w := app.do(t, http.MethodPost, "/api/v1/verify-otp", map[string]any{
		"email": email,
		"otp":   strconv.Itoa(code),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify-otp failed with status %d: %s", w.Code, w.Body.String())
	}
	return sessionCookie(t, w)
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name     string
		mutate   func(body map[string]any)
		expected string
	}{
		{
			name:     "missing field",
			mutate:   func(b map[string]any) { b["email"] = "" },
			expected: "All fields are required.",
		},
		{
			name:     "bad date format",
			mutate:   func(b map[string]any) { b["dateOfBirth"] = "12/04/1990" },
			expected: "Invalid date of birth format.",
		},
		{
			name:     "future date of birth",
			mutate:   func(b map[string]any) { b["dateOfBirth"] = "2999-01-01" },
			expected: "Date of birth must be in the past.",
		},
		{
			name: "under thirteen",
			mutate: func(b map[string]any) {
				b["dateOfBirth"] = time.Now().AddDate(-10, 0, 0).Format("2006-01-02")
			},
			expected: "You must be at least 13 years old to register.",
		},
		{
			name:     "invalid verification method",
			mutate:   func(b map[string]any) { b["verificationMethod"] = "carrier-pigeon" },
			expected: "Invalid verification method. Supported: 'email' or 'phone'.",
		},
		{
			name:     "short password",
			mutate:   func(b map[string]any) { b["password"] = "short" },
			expected: "Password should be greater than 8 characters.",
		},
		{
			name:     "short name",
			mutate:   func(b map[string]any) { b["name"] = "Jo" },
			expected: "Name should have more than 4 characters.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := registerBody("reject@example.com")
			tt.mutate(body)
			w := app.do(t, http.MethodPost, "/api/v1/register", body)
			assertMessage(t, w, http.StatusBadRequest, tt.expected)
		})
	}
}

func TestRegisterIssuesCode(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/v1/register", registerBody("fresh@example.com"))
	assertMessage(t, w, http.StatusCreated, "User registered successfully. OTP sent via email.")

	code := app.dispatcher.lastCode(t)
	if code < 10000 || code > 99999 {
		t.Fatalf("expected a 5-digit code, got %d", code)
	}

	pending, err := app.users.FindUnverified(context.Background(), "fresh@example.com", "")
	if err != nil {
		t.Fatalf("FindUnverified: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 unverified record, got %d", len(pending))
	}
	u := pending[0]
	if u.AccountVerified {
		t.Fatal("new registration must start unverified")
	}
	if u.VerificationCode != code {
		t.Fatalf("stored code %d does not match dispatched code %d", u.VerificationCode, code)
	}
	if u.VerificationCodeExpire == nil {
		t.Fatal("code expiry was not stored")
	}
	expected := app.clock().Add(scribe.CodeTTL)
	if diff := u.VerificationCodeExpire.Sub(expected); diff < -time.Second || diff > time.Second {
		t.Fatalf("code expiry off by %v", diff)
	}
	if u.Password == "supersecret" || u.Password == "" {
		t.Fatal("password must be stored as a hash")
	}
}

func TestRegisterSMSChannel(t *testing.T) {
	app := newTestApp(t)
	body := registerBody("texter@example.com")
	body["verificationMethod"] = "phone"
	w := app.do(t, http.MethodPost, "/api/v1/register", body)
	assertMessage(t, w, http.StatusCreated, "User registered successfully. OTP sent via SMS.")
}

func TestRegisterConflictWithVerified(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "taken@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/register", registerBody("taken@example.com"))
	assertMessage(t, w, http.StatusBadRequest, "Phone or Email is already used.")
}

func TestRegisterRateLimited(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < 3; i++ {
		w := app.do(t, http.MethodPost, "/api/v1/register", registerBody("eager@example.com"))
		if w.Code != http.StatusCreated {
			t.Fatalf("attempt %d should succeed, got %d: %s", i+1, w.Code, w.Body.String())
		}
	}
	w := app.do(t, http.MethodPost, "/api/v1/register", registerBody("eager@example.com"))
	assertMessage(t, w, http.StatusTooManyRequests,
		"Exceeded maximum registration attempts (3). Try again after an hour.")
}

func TestRegisterDispatchFailureKeepsCode(t *testing.T) {
	app := newTestApp(t)
	app.dispatcher.failCode = true

	w := app.do(t, http.MethodPost, "/api/v1/register", registerBody("unlucky@example.com"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on dispatch failure, got %d", w.Code)
	}

	// The persisted code survives the failed dispatch.
	pending, err := app.users.FindUnverified(context.Background(), "unlucky@example.com", "")
	if err != nil {
		t.Fatalf("FindUnverified: %v", err)
	}
	if len(pending) != 1 || pending[0].VerificationCode == 0 {
		t.Fatal("expected the unverified record to retain its code")
	}
}

func TestVerifyOTP(t *testing.T) {
	app := newTestApp(t)
	code := app.register(t, "verify@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/verify-otp", map[string]any{
		"email": "verify@example.com",
		"otp":   strconv.Itoa(code),
	})
	body := assertMessage(t, w, http.StatusOK, "Account Verified.")
	if body["token"] == "" || body["token"] == nil {
		t.Fatal("expected a session token in the response body")
	}
	cookie := sessionCookie(t, w)
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HTTP-only")
	}

	// The same identity cannot be verified twice.
	w = app.do(t, http.MethodPost, "/api/v1/verify-otp", map[string]any{
		"email": "verify@example.com",
		"otp":   strconv.Itoa(code),
	})
	assertMessage(t, w, http.StatusNotFound, "User not found or already verified.")
}

func TestVerifyOTPWrongCode(t *testing.T) {
	app := newTestApp(t)
	code := app.register(t, "retry@example.com")

	wrong := code + 1
	if wrong > 99999 {
		wrong = code - 1
	}
	w := app.do(t, http.MethodPost, "/api/v1/verify-otp", map[string]any{
		"email": "retry@example.com",
		"otp":   strconv.Itoa(wrong),
	})
	assertMessage(t, w, http.StatusBadRequest, "Invalid OTP.")

	// A wrong guess does not consume the real code.
	w = app.do(t, http.MethodPost, "/api/v1/verify-otp", map[string]any{
		"email": "retry@example.com",
		"otp":   strconv.Itoa(code),
	})
	assertMessage(t, w, http.StatusOK, "Account Verified.")
}

func TestVerifyOTPExpired(t *testing.T) {
	app := newTestApp(t)
	code := app.register(t, "slow@example.com")

	app.advance(scribe.CodeTTL + time.Minute)
	w := app.do(t, http.MethodPost, "/api/v1/verify-otp", map[string]any{
		"email": "slow@example.com",
		"otp":   strconv.Itoa(code),
	})
	assertMessage(t, w, http.StatusBadRequest, "OTP has expired.")
}

func TestVerifyOTPNewestAttemptWins(t *testing.T) {
	app := newTestApp(t)
	first := app.register(t, "twice@example.com")
	app.advance(time.Second)
	second := app.register(t, "twice@example.com")

	// The superseded code no longer verifies anything.
	if first != second {
		w := app.do(t, http.MethodPost, "/api/v1/verify-otp", map[string]any{
			"email": "twice@example.com",
			"otp":   strconv.Itoa(first),
		})
		assertMessage(t, w, http.StatusBadRequest, "Invalid OTP.")
	}

	w := app.do(t, http.MethodPost, "/api/v1/verify-otp", map[string]any{
		"email": "twice@example.com",
		"otp":   strconv.Itoa(second),
	})
	assertMessage(t, w, http.StatusOK, "Account Verified.")

	pending, err := app.users.FindUnverified(context.Background(), "twice@example.com", "")
	if err != nil {
		t.Fatalf("FindUnverified: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected superseded records to be purged, found %d", len(pending))
	}
}

func TestLoginPassword(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "login@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"email":       "login@example.com",
		"password":    "supersecret",
		"loginMethod": "password",
	})
	body := assertMessage(t, w, http.StatusOK, "User logged in successfully.")
	if body["token"] == "" || body["token"] == nil {
		t.Fatal("expected a session token in the response body")
	}
	sessionCookie(t, w)
}

func TestLoginPasswordGenericFailure(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "secure@example.com")

	tests := []struct {
		name  string
		email string
		pass  string
	}{
		{"wrong password", "secure@example.com", "not-the-password"},
		{"unknown email", "nobody@example.com", "supersecret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, http.MethodPost, "/api/v1/login", map[string]any{
				"email":       tt.email,
				"password":    tt.pass,
				"loginMethod": "password",
			})
			// Same status and message either way.
			assertMessage(t, w, http.StatusBadRequest, "Invalid email or password.")
		})
	}
}

func TestLoginUnverifiedRejected(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "pending@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"email":       "pending@example.com",
		"password":    "supersecret",
		"loginMethod": "password",
	})
	assertMessage(t, w, http.StatusBadRequest, "Invalid email or password.")
}

func TestLoginOTPFlow(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "otplogin@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/login/otp", map[string]any{
		"email":       "otplogin@example.com",
		"loginMethod": "otp",
	})
	assertMessage(t, w, http.StatusOK, "OTP sent successfully via email.")
	code := app.dispatcher.lastCode(t)

	w = app.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"email":       "otplogin@example.com",
		"otp":         strconv.Itoa(code),
		"loginMethod": "otp",
	})
	assertMessage(t, w, http.StatusOK, "User logged in successfully.")

	// Codes are single-use.
	w = app.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"email":       "otplogin@example.com",
		"otp":         strconv.Itoa(code),
		"loginMethod": "otp",
	})
	assertMessage(t, w, http.StatusBadRequest, "OTP not found for this user.")
}

func TestRequestOTPUnknownUser(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, "/api/v1/login/otp", map[string]any{
		"email":       "ghost@example.com",
		"loginMethod": "otp",
	})
	assertMessage(t, w, http.StatusNotFound, "User not found or account not verified.")
}

func TestGetUser(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndVerify(t, "me@example.com")

	w := app.do(t, http.MethodGet, "/api/v1/me", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected a user object, got %v", body["user"])
	}
	if user["email"] != "me@example.com" {
		t.Fatalf("expected email me@example.com, got %v", user["email"])
	}

	w = app.do(t, http.MethodGet, "/api/v1/me", nil)
	assertMessage(t, w, http.StatusUnauthorized, "User is not authenticated.")
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndVerify(t, "leaver@example.com")

	w := app.do(t, http.MethodGet, "/api/v1/logout", nil, cookie)
	assertMessage(t, w, http.StatusOK, "Logged out successfully.")

	var cleared *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == scribe.SessionCookieName {
			cleared = c
		}
	}
	if cleared == nil {
		t.Fatal("logout did not touch the session cookie")
	}
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("expected an expired empty cookie, got value=%q maxAge=%d", cleared.Value, cleared.MaxAge)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "forgetful@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/password/forgot", map[string]any{
		"email": "forgetful@example.com",
	})
	assertMessage(t, w, http.StatusOK, "Email sent to forgetful@example.com successfully.")

	link := app.dispatcher.lastLink(t)
	token := link[strings.LastIndex(link, "/")+1:]
	if token == "" {
		t.Fatalf("could not extract token from link %q", link)
	}

	w = app.do(t, http.MethodPut, "/api/v1/password/reset/"+token, map[string]any{
		"password":        "brand-new-pass",
		"confirmPassword": "brand-new-pass",
	})
	assertMessage(t, w, http.StatusOK, "Reset Password Successfully.")
	sessionCookie(t, w)

	// Old password is dead, new one works.
	w = app.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"email":       "forgetful@example.com",
		"password":    "supersecret",
		"loginMethod": "password",
	})
	assertMessage(t, w, http.StatusBadRequest, "Invalid email or password.")

	w = app.do(t, http.MethodPost, "/api/v1/login", map[string]any{
		"email":       "forgetful@example.com",
		"password":    "brand-new-pass",
		"loginMethod": "password",
	})
	assertMessage(t, w, http.StatusOK, "User logged in successfully.")

	// Redemption is single-use.
	w = app.do(t, http.MethodPut, "/api/v1/password/reset/"+token, map[string]any{
		"password":        "another-pass-123",
		"confirmPassword": "another-pass-123",
	})
	assertMessage(t, w, http.StatusBadRequest, "Reset password token is invalid or has expired.")
}

func TestResetPasswordExpiredToken(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "tardy@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/password/forgot", map[string]any{
		"email": "tardy@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("forgot password failed: %s", w.Body.String())
	}
	link := app.dispatcher.lastLink(t)
	token := link[strings.LastIndex(link, "/")+1:]

	app.advance(scribe.ResetTokenTTL + time.Minute)
	w = app.do(t, http.MethodPut, "/api/v1/password/reset/"+token, map[string]any{
		"password":        "brand-new-pass",
		"confirmPassword": "brand-new-pass",
	})
	assertMessage(t, w, http.StatusBadRequest, "Reset password token is invalid or has expired.")
}

func TestResetPasswordMismatch(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "clumsy@example.com")

	w := app.do(t, http.MethodPost, "/api/v1/password/forgot", map[string]any{
		"email": "clumsy@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("forgot password failed: %s", w.Body.String())
	}
	link := app.dispatcher.lastLink(t)
	token := link[strings.LastIndex(link, "/")+1:]

	w = app.do(t, http.MethodPut, "/api/v1/password/reset/"+token, map[string]any{
		"password":        "brand-new-pass",
		"confirmPassword": "different-pass",
	})
	assertMessage(t, w, http.StatusBadRequest, "Password & confirm password do not match.")
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, "/api/v1/password/forgot", map[string]any{
		"email": "ghost@example.com",
	})
	assertMessage(t, w, http.StatusNotFound, "User not found.")
}

func TestForgotPasswordDispatchFailureClearsToken(t *testing.T) {
	app := newTestApp(t)
	app.registerAndVerify(t, "stranded@example.com")
	app.dispatcher.failLink = true

	w := app.do(t, http.MethodPost, "/api/v1/password/forgot", map[string]any{
		"email": "stranded@example.com",
	})
	assertMessage(t, w, http.StatusInternalServerError, "Cannot send reset password token.")

	u, err := app.users.FindVerifiedByEmail(context.Background(), "stranded@example.com", false)
	if err != nil {
		t.Fatalf("FindVerifiedByEmail: %v", err)
	}
	if u.ResetPasswordToken != "" || u.ResetPasswordExpire != nil {
		t.Fatal("expected the reset token to be cleared after a failed dispatch")
	}
}
