package scribe

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost matches the salt rounds the rest of the system expects.
	bcryptCost = 10

	// MinPasswordLength is enforced before hashing, never against a hash.
	MinPasswordLength = 8

	// ResetTokenTTL is how long a password-reset token stays redeemable.
	ResetTokenTTL = 15 * time.Minute

	resetTokenBytes = 20
)

// HashPassword produces a salted bcrypt hash of the plaintext.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches the stored hash. A
// mismatch is a false, never an error.
func CheckPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// SetPassword validates and hashes a new plaintext password onto the
// record. Hashing happens only here, on change; saves never re-hash the
// stored value.
func (u *User) SetPassword(plaintext string) error {
	if len(plaintext) < MinPasswordLength {
		return E(KindValidation, "Password should be greater than 8 characters.")
	}
	hash, err := HashPassword(plaintext)
	if err != nil {
		return err
	}
	u.Password = hash
	return nil
}

// IssueResetToken generates a reset token, stores its sha256 hash and a
// 15 minute expiry on the record, and returns the plaintext for dispatch.
func IssueResetToken(u *User, now time.Time) (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	token := hex.EncodeToString(b)
	expire := now.Add(ResetTokenTTL)
	u.ResetPasswordToken = HashResetToken(token)
	u.ResetPasswordExpire = &expire
	return token, nil
}

// HashResetToken maps a plaintext reset token to its stored form.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ClearResetToken removes any in-flight reset token from the record.
func ClearResetToken(u *User) {
	u.ResetPasswordToken = ""
	u.ResetPasswordExpire = nil
}
