package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpOpts matches what the portal's IdP issues: 6 digits, SHA1, 30s step.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1, // ±1 window tolerance for clock drift
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateTOTP derives the one-time code for the given seed at time t.
// Deterministic per 30-second step.
func GenerateTOTP(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totpOpts)
}

// ValidateTOTP reports whether code is valid for the seed at time t, allowing
// one step of clock drift either side.
func ValidateTOTP(code, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, totpOpts)
	return err == nil && ok
}
