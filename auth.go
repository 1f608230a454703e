package scribe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Auth ties the credential store, code engine, password engine, session
// issuer and dispatcher together into the request-level flows.
type Auth struct {
	Users      UserStore
	Dispatcher Dispatcher
	Sessions   *SessionIssuer

	// FrontendURL is the base for password-reset links.
	FrontendURL string

	Logger *zap.Logger

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func (a *Auth) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return E(KindValidation, "Invalid request body.")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, body map[string]any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// maxUnverifiedAttempts bounds how many unverified records may pile up for
// one email/phone before registration is rate limited.
const maxUnverifiedAttempts = 3

type registerRequest struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Password           string `json:"password"`
	DateOfBirth        string `json:"dateOfBirth"`
	VerificationMethod string `json:"verificationMethod"`
}

// HandleRegister creates an unverified record, issues a one-time code and
// dispatches it over the chosen channel. Each gate short-circuits on the
// first failure.
func (a *Auth) HandleRegister(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Name == "" || req.Email == "" || req.Phone == "" || req.Password == "" ||
		req.VerificationMethod == "" || req.DateOfBirth == "" {
		return E(KindValidation, "All fields are required.")
	}

	birth, err := parseDate(req.DateOfBirth)
	if err != nil {
		return E(KindValidation, "Invalid date of birth format.")
	}
	now := a.now()
	if !birth.Before(now) {
		return E(KindValidation, "Date of birth must be in the past.")
	}

	user := &User{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		DateOfBirth: &birth,
	}
	if user.Age(now) < 13 {
		return E(KindValidation, "You must be at least 13 years old to register.")
	}

	// Verified identities are exclusive; unverified attempts are bounded.
	existing, err := a.Users.FindVerified(r.Context(), req.Email, req.Phone)
	if err != nil {
		return err
	}
	if existing != nil {
		return E(KindConflict, "Phone or Email is already used.")
	}

	attempts, err := a.Users.FindUnverified(r.Context(), req.Email, req.Phone)
	if err != nil {
		return err
	}
	if len(attempts) >= maxUnverifiedAttempts {
		return E(KindRateLimited, "Exceeded maximum registration attempts (3). Try again after an hour.")
	}

	if !ValidChannel(req.VerificationMethod) {
		return E(KindValidation, "Invalid verification method. Supported: 'email' or 'phone'.")
	}

	if err := user.SetPassword(req.Password); err != nil {
		return err
	}
	user, err = a.Users.Create(r.Context(), user)
	if err != nil {
		return err
	}

	code := IssueCode(user, now)
	if err := a.Users.SaveFields(r.Context(), user, "verificationCode"); err != nil {
		return err
	}

	channel := Channel(req.VerificationMethod)
	if err := a.Dispatcher.SendCode(r.Context(), channel, user, code); err != nil {
		// The code stays on record, so a later verification attempt with a
		// re-requested code still works.
		a.Logger.Error("failed to dispatch verification code",
			zap.String("channel", string(channel)),
			zap.String("email", user.Email),
			zap.Error(err))
		return err
	}

	return respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": fmt.Sprintf("User registered successfully. %s", sentVia(channel)),
	})
}

func sentVia(channel Channel) string {
	if channel == ChannelPhone {
		return "OTP sent via SMS."
	}
	return "OTP sent via email."
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type requestOTPRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LoginMethod string `json:"loginMethod"`
}

// HandleRequestOTP issues a login code for an already verified user.
func (a *Auth) HandleRequestOTP(w http.ResponseWriter, r *http.Request) error {
	var req requestOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.LoginMethod == "" {
		return E(KindValidation, "Login method is required.")
	}
	if req.LoginMethod != LoginMethodOTP {
		return E(KindValidation, "Invalid login method for OTP request.")
	}
	if req.Email == "" && req.Phone == "" {
		return E(KindValidation, "Email or phone number is required for OTP login.")
	}

	user, err := a.Users.FindVerified(r.Context(), req.Email, req.Phone)
	if err != nil {
		return err
	}
	if user == nil {
		return E(KindNotFound, "User not found or account not verified.")
	}

	// Email is the preferred channel when both contacts are on file.
	var channel Channel
	switch {
	case user.Email != "":
		channel = ChannelEmail
	case user.Phone != "":
		channel = ChannelPhone
	default:
		return E(KindValidation, "User has no email or phone registered.")
	}

	code := IssueCode(user, a.now())
	if err := a.Users.SaveFields(r.Context(), user, "verificationCode"); err != nil {
		return err
	}
	if err := a.Dispatcher.SendCode(r.Context(), channel, user, code); err != nil {
		a.Logger.Error("failed to dispatch login OTP",
			zap.String("email", user.Email),
			zap.Error(err))
		return err
	}

	return respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("OTP sent successfully via %s.", channel),
	})
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

// HandleVerifyOTP confirms a registration code. When several unverified
// records share the identity, the newest wins and the rest are purged.
func (a *Auth) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) error {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if (req.Email == "" && req.Phone == "") || req.OTP == "" {
		return E(KindValidation, "Email or Phone and OTP are required.")
	}

	entries, err := a.Users.FindUnverified(r.Context(), req.Email, req.Phone)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return E(KindNotFound, "User not found or already verified.")
	}

	user := entries[0]
	if len(entries) > 1 {
		if err := a.Users.DeleteUnverifiedExcept(r.Context(), user.ID, req.Email, req.Phone); err != nil {
			return err
		}
	}

	if err := CheckCode(user, req.OTP, a.now()); err != nil {
		return err
	}

	user.AccountVerified = true
	ClearCode(user)
	if err := a.Users.SaveFields(r.Context(), user, "accountVerified", "verificationCode"); err != nil {
		return err
	}

	return a.Sessions.SendToken(w, r, user, http.StatusOK, "Account Verified.")
}

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	OTP         string `json:"otp"`
	LoginMethod string `json:"loginMethod"`
}

// HandleLogin authenticates a verified user by password or one-time code.
// Password failures never reveal whether the email or the password was
// wrong.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Email == "" || req.LoginMethod == "" {
		return E(KindValidation, "Email and login method are required.")
	}

	var user *User
	switch req.LoginMethod {
	case LoginMethodPassword:
		if req.Password == "" {
			return E(KindValidation, "Password is required for password-based login.")
		}
		u, err := a.Users.FindVerifiedByEmail(r.Context(), req.Email, true)
		if err != nil {
			return err
		}
		if u == nil || !CheckPassword(req.Password, u.Password) {
			return E(KindValidation, "Invalid email or password.")
		}
		user = u

	case LoginMethodOTP:
		if req.OTP == "" {
			return E(KindValidation, "OTP is required for OTP-based login.")
		}
		u, err := a.Users.FindVerifiedByEmail(r.Context(), req.Email, false)
		if err != nil {
			return err
		}
		if u == nil {
			return E(KindValidation, "Invalid email or OTP.")
		}
		if err := CheckCode(u, req.OTP, a.now()); err != nil {
			return err
		}
		ClearCode(u)
		if err := a.Users.SaveFields(r.Context(), u, "verificationCode"); err != nil {
			return err
		}
		user = u

	default:
		return E(KindValidation, "Invalid login method. Use 'password' or 'otp'.")
	}

	if user.LoginMethod != req.LoginMethod {
		user.LoginMethod = req.LoginMethod
		if err := a.Users.SaveFields(r.Context(), user, "loginMethod"); err != nil {
			return err
		}
	}

	return a.Sessions.SendToken(w, r, user, http.StatusOK, "User logged in successfully.")
}

// HandleLogout clears the session cookie and the server-side session.
func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) error {
	a.Sessions.Clear(w, r)
	return respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully.",
	})
}

// HandleGetUser returns the user resolved by the authentication gate.
func (a *Auth) HandleGetUser(w http.ResponseWriter, r *http.Request) error {
	user := UserFrom(r.Context())
	if user == nil {
		return E(KindUnauthorized, "User is not authenticated.")
	}
	return respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// HandleForgotPassword issues a reset token and mails a reset link. When
// the mail cannot be sent the token is cleared again so no unreachable
// reset path is left behind.
func (a *Auth) HandleForgotPassword(w http.ResponseWriter, r *http.Request) error {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	user, err := a.Users.FindVerifiedByEmail(r.Context(), req.Email, false)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	token, err := IssueResetToken(user, a.now())
	if err != nil {
		return err
	}
	if err := a.Users.SaveFields(r.Context(), user, "resetPasswordToken"); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/password/reset/%s", a.FrontendURL, token)
	if err := a.Dispatcher.SendResetLink(r.Context(), user.Email, link); err != nil {
		a.Logger.Error("failed to send reset link",
			zap.String("email", user.Email),
			zap.Error(err))
		ClearResetToken(user)
		if saveErr := a.Users.SaveFields(r.Context(), user, "resetPasswordToken"); saveErr != nil {
			a.Logger.Error("failed to clear reset token after dispatch failure",
				zap.String("email", user.Email),
				zap.Error(saveErr))
		}
		return E(KindInternal, "Cannot send reset password token.")
	}

	return respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Email sent to %s successfully.", user.Email),
	})
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// HandleResetPassword redeems a reset token from the URL path. Redemption
// is single-use: the stored hash is cleared with the password change.
func (a *Auth) HandleResetPassword(w http.ResponseWriter, r *http.Request) error {
	token := mux.Vars(r)["token"]
	user, err := a.Users.FindByResetTokenHash(r.Context(), HashResetToken(token), a.now())
	if err != nil {
		return err
	}
	if user == nil {
		return E(KindTokenExpired, "Reset password token is invalid or has expired.")
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Password != req.ConfirmPassword {
		return E(KindValidation, "Password & confirm password do not match.")
	}

	if err := user.SetPassword(req.Password); err != nil {
		return err
	}
	ClearResetToken(user)
	if err := a.Users.Save(r.Context(), user); err != nil {
		return err
	}

	return a.Sessions.SendToken(w, r, user, http.StatusOK, "Reset Password Successfully.")
}
