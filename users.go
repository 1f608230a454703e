package scribe

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Login methods a user can choose between.
const (
	LoginMethodPassword = "password"
	LoginMethodOTP      = "otp"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// User is the credential record for one registration attempt. Several
// unverified records may share an email until one of them is confirmed;
// at most one verified record exists per email or phone.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`

	// Password holds the bcrypt hash, never the plaintext. It is excluded
	// from JSON and from default store lookups.
	Password string `json:"-"`

	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`

	AccountVerified        bool       `json:"accountVerified"`
	VerificationCode       int        `json:"-"`
	VerificationCodeExpire *time.Time `json:"-"`

	// ResetPasswordToken is the sha256 hex of the token handed to the user.
	// The plaintext exists only in the dispatched reset link.
	ResetPasswordToken  string     `json:"-"`
	ResetPasswordExpire *time.Time `json:"-"`

	LoginMethod string `json:"loginMethod,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate runs the full schema check. Stores apply this before any full
// save; partial saves use ValidateFields with the modified field names.
func (u *User) Validate() error {
	return u.ValidateFields("name", "email", "phone", "dateOfBirth", "loginMethod", "verificationCode")
}

// ValidateFields checks only the named fields so that partial updates
// (e.g. clearing a one-time code) do not trip over unrelated fields.
func (u *User) ValidateFields(fields ...string) error {
	for _, f := range fields {
		switch f {
		case "name":
			if len(u.Name) < 4 {
				return E(KindValidation, "Name should have more than 4 characters.")
			}
			if len(u.Name) > 30 {
				return E(KindValidation, "Name cannot exceed 30 characters.")
			}
		case "email":
			if u.Email == "" {
				return E(KindValidation, "Please enter your email.")
			}
			if !emailRegex.MatchString(u.Email) {
				return E(KindValidation, "Please enter a valid email.")
			}
		case "dateOfBirth":
			if u.DateOfBirth != nil && !u.DateOfBirth.Before(time.Now()) {
				return E(KindValidation, "Date of birth must be in the past.")
			}
		case "loginMethod":
			if u.LoginMethod != "" && u.LoginMethod != LoginMethodPassword && u.LoginMethod != LoginMethodOTP {
				return E(KindValidation, fmt.Sprintf("Invalid login method %q.", u.LoginMethod))
			}
		case "verificationCode":
			// Code and expiry are either both present or both absent.
			if (u.VerificationCode == 0) != (u.VerificationCodeExpire == nil) {
				return E(KindValidation, "Verification code and expiry must be set together.")
			}
		}
	}
	return nil
}

// Age returns the user's age in whole years at the given instant.
func (u *User) Age(now time.Time) int {
	if u.DateOfBirth == nil {
		return 0
	}
	dob := *u.DateOfBirth
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// UserStore persists credential records. Implementations translate backend
// failures (duplicate keys, malformed ids) into the sentinel errors in
// errors.go so the responder can rewrite them uniformly.
type UserStore interface {
	// Create inserts a new (unverified) record. Fails with ErrDuplicateEmail
	// when a verified record already owns the email.
	Create(ctx context.Context, u *User) (*User, error)

	// Save persists the full record after running Validate.
	Save(ctx context.Context, u *User) error

	// SaveFields persists only the named fields, validating just those.
	SaveFields(ctx context.Context, u *User, fields ...string) error

	FindByID(ctx context.Context, id string) (*User, error)

	// FindVerified returns the verified record matching email or phone.
	// The password field is not selected.
	FindVerified(ctx context.Context, email, phone string) (*User, error)

	// FindVerifiedByEmail is the login lookup; withPassword selects the
	// stored hash, which default lookups omit.
	FindVerifiedByEmail(ctx context.Context, email string, withPassword bool) (*User, error)

	// FindUnverified returns every unverified record matching email or
	// phone, most recently created first.
	FindUnverified(ctx context.Context, email, phone string) ([]*User, error)

	// DeleteUnverifiedExcept purges superseded unverified duplicates once
	// one of them has been confirmed.
	DeleteUnverifiedExcept(ctx context.Context, keepID, email, phone string) error

	// FindByResetTokenHash returns the user whose stored reset-token hash
	// matches and whose expiry is after now.
	FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*User, error)
}
