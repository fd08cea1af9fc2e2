package userrepo

import (
	"regexp"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// UsernamePolicy decides whether a candidate username is acceptable.
// Implementations return an INVALID_USERNAME error on rejection; the
// manager surfaces it to the caller unmutated.
type UsernamePolicy interface {
	Validate(username string) error
}

// PasswordPolicy decides whether a candidate password is acceptable.
// Implementations return a WEAK_PASSWORD error on rejection. A nil
// policy on the manager means no password rule is enforced.
type PasswordPolicy interface {
	Accept(password string) error
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)

// DefaultUsernamePolicy accepts usernames of 1 to 32 characters drawn
// from letters, digits, and the . _ @ - punctuation set.
type DefaultUsernamePolicy struct{}

func (DefaultUsernamePolicy) Validate(username string) error {
	err := validation.Validate(username,
		validation.Required,
		validation.Length(1, 32),
		validation.Match(usernamePattern),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "username is not acceptable").
			WithTextCode(TextCodeInvalidUsername)
	}
	return nil
}

// DefaultPasswordPolicy requires at least MinLength characters including
// one letter and one digit.
type DefaultPasswordPolicy struct {
	MinLength int
}

func (p DefaultPasswordPolicy) Accept(password string) error {
	min := p.MinLength
	if min <= 0 {
		min = 8
	}

	if err := validation.Validate(password, validation.Required, validation.Length(min, 128)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "password is too weak").
			WithTextCode(TextCodeWeakPassword)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter || !hasDigit {
		return goerrors.New("password must contain at least one letter and one digit", goerrors.CategoryValidation).
			WithTextCode(TextCodeWeakPassword)
	}

	return nil
}
