package scribe

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// CodeTTL is how long a one-time code stays valid after issuance.
const CodeTTL = 10 * time.Minute

// GenerateCode produces a 5-digit code. The leading digit is 1-9 so the
// code never shrinks to 4 digits when handled as a number.
func GenerateCode() int {
	first, _ := rand.Int(rand.Reader, big.NewInt(9))
	rest, _ := rand.Int(rand.Reader, big.NewInt(10000))
	return int(first.Int64()+1)*10000 + int(rest.Int64())
}

// IssueCode stamps a fresh code and expiry onto the user record and returns
// the code. The caller persists the record and dispatches the code.
func IssueCode(u *User, now time.Time) int {
	code := GenerateCode()
	expire := now.Add(CodeTTL)
	u.VerificationCode = code
	u.VerificationCodeExpire = &expire
	return code
}

// CheckCode validates a supplied code against the one on file. The caller
// clears both fields on any terminal outcome, making codes single-use.
func CheckCode(u *User, supplied string, now time.Time) error {
	if u.VerificationCode == 0 {
		return E(KindValidation, "OTP not found for this user.")
	}
	code, err := strconv.Atoi(strings.TrimSpace(supplied))
	if err != nil || code != u.VerificationCode {
		return E(KindValidation, "Invalid OTP.")
	}
	if u.VerificationCodeExpire == nil {
		return E(KindValidation, "OTP expiration information is missing.")
	}
	if now.After(*u.VerificationCodeExpire) {
		return E(KindCodeExpired, "OTP has expired.")
	}
	return nil
}

// ClearCode removes the one-time code from the record. Pairs with
// SaveFields(u, "verificationCode") for the partial persist.
func ClearCode(u *User) {
	u.VerificationCode = 0
	u.VerificationCodeExpire = nil
}
