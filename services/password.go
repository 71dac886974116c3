package services

import (
	"errors"
	"strings"
	"unicode"
)

// PasswordPolicy defines the password requirements for account
// registration.
type PasswordPolicy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireNumber  bool
	ForbiddenWords []string
}

// DefaultPasswordPolicy returns the registration policy. The minimum
// matches the registration form check so the two layers never disagree.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:     8,
		MaxLength:     128,
		RequireUpper:  true,
		RequireNumber: true,
		ForbiddenWords: []string{
			"password", "contrasena", "gestion", "admin", "escuela",
			"123456", "qwerty", "welcome",
		},
	}
}

// ValidatePassword validates a password against the default policy.
func ValidatePassword(password string) error {
	return DefaultPasswordPolicy().Validate(password)
}

// Validate checks a password against the policy.
func (pp *PasswordPolicy) Validate(password string) error {
	if len(password) < pp.MinLength {
		return errors.New("password is too short")
	}
	if len(password) > pp.MaxLength {
		return errors.New("password is too long")
	}

	var hasUpper, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}
	if pp.RequireUpper && !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if pp.RequireNumber && !hasNumber {
		return errors.New("password must contain at least one number")
	}

	lowerPassword := strings.ToLower(password)
	for _, word := range pp.ForbiddenWords {
		if strings.Contains(lowerPassword, word) {
			return errors.New("password contains common words that are not allowed")
		}
	}

	if hasSequentialChars(password) {
		return errors.New("password contains sequential characters")
	}
	if hasRepeatingChars(password) {
		return errors.New("password contains too many repeating characters")
	}

	return nil
}

// hasSequentialChars checks for runs like 123 or abc in either
// direction.
func hasSequentialChars(password string) bool {
	for i := 0; i < len(password)-2; i++ {
		if password[i]+1 == password[i+1] && password[i+1]+1 == password[i+2] {
			return true
		}
		if password[i]-1 == password[i+1] && password[i+1]-1 == password[i+2] {
			return true
		}
	}
	return false
}

func hasRepeatingChars(password string) bool {
	consecutive := 1
	for i := 1; i < len(password); i++ {
		if password[i] == password[i-1] {
			consecutive++
			if consecutive >= 3 {
				return true
			}
		} else {
			consecutive = 1
		}
	}
	return false
}
