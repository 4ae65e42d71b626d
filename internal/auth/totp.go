// Package auth computes one-time passwords for second-factor login pages.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var ErrEmptySecret = errors.New("totp secret cannot be empty")

// Django's OTP plugins use RFC 6238 defaults.
var codeOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// normalizeSecret accepts secrets the way authenticator apps display them:
// grouped by spaces and in any case.
func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
}

// CodeAt returns the code valid at t.
func CodeAt(secret string, t time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	code, err := totp.GenerateCodeCustom(normalizeSecret(secret), t.UTC(), codeOpts)
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return code, nil
}

func GenerateTOTP(secret string) (string, error) {
	return CodeAt(secret, time.Now())
}

func ValidateTOTP(passcode, secret string) (bool, error) {
	if secret == "" {
		return false, ErrEmptySecret
	}
	if passcode == "" {
		return false, fmt.Errorf("passcode cannot be empty")
	}

	valid, err := totp.ValidateCustom(passcode, normalizeSecret(secret), time.Now().UTC(), codeOpts)
	if err != nil {
		return false, fmt.Errorf("failed to validate totp code: %w", err)
	}
	return valid, nil
}
