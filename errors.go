package userrepo

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the structured errors this package returns.
// Callers that need to branch on a failure mode should use the Is*
// helpers rather than matching codes directly.
const (
	TextCodeInvalidInput    = "INVALID_INPUT"
	TextCodeDuplicateUser   = "DUPLICATE_USER"
	TextCodeUserNotFound    = "USER_NOT_FOUND"
	TextCodeAuthFailed      = "AUTHENTICATION_FAILED"
	TextCodeUserLocked      = "USER_LOCKED"
	TextCodeWeakPassword    = "WEAK_PASSWORD"
	TextCodeInvalidUsername = "INVALID_USERNAME"
	TextCodeNoEmail         = "NO_EMAIL"
	TextCodeSystem          = "SYSTEM"
)

// ErrAuthenticationFailed is returned for a wrong password and for an
// unknown username alike, so callers cannot probe for which usernames
// exist.
var ErrAuthenticationFailed = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthFailed)

// ErrLockedUser is returned once an account has exhausted its failed
// attempt budget. It is deliberately distinguishable from
// ErrAuthenticationFailed so a UI can direct the user to an unlock flow.
var ErrLockedUser = goerrors.New("account is locked, contact an administrator", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserLocked)

// ErrNoEmail is returned by Reset when the account has no registered
// email to deliver a confirmation token to.
var ErrNoEmail = goerrors.New("no email registered for account, see administrator", goerrors.CategoryValidation).
	WithTextCode(TextCodeNoEmail)

// ErrEmptySecret is returned when an empty string is handed to the
// credential hasher.
var ErrEmptySecret = goerrors.New("secret should never be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput)

func invalidInput(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidInput)
}

func duplicateUser(username string) *goerrors.Error {
	return goerrors.New("user already exists", goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateUser).
		WithMetadata(map[string]any{"username": username})
}

// NewUserNotFound builds the USER_NOT_FOUND error Store implementations
// return for missing records.
func NewUserNotFound(username string) *goerrors.Error {
	return goerrors.New("user does not exist", goerrors.CategoryNotFound).
		WithTextCode(TextCodeUserNotFound).
		WithMetadata(map[string]any{"username": username})
}

// systemError wraps a store or crypto failure. The wrapped detail is
// meant for the boundary log only; the message callers see is generic
// and carries no hash material.
func systemError(err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "operation failed due to a system problem, contact an administrator").
		WithTextCode(TextCodeSystem)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// IsInvalidInput reports whether err marks a malformed or empty required
// argument. These are caller bugs and should not be retried.
func IsInvalidInput(err error) bool { return hasTextCode(err, TextCodeInvalidInput) }

// IsDuplicateUser reports whether err is a duplicate registration rejection.
func IsDuplicateUser(err error) bool { return hasTextCode(err, TextCodeDuplicateUser) }

// IsUserNotFound reports whether err marks a missing user record.
func IsUserNotFound(err error) bool { return hasTextCode(err, TextCodeUserNotFound) }

// IsAuthenticationFailed reports whether err is a credential rejection.
func IsAuthenticationFailed(err error) bool { return hasTextCode(err, TextCodeAuthFailed) }

// IsLockedUser reports whether err marks a locked account.
func IsLockedUser(err error) bool { return hasTextCode(err, TextCodeUserLocked) }

// IsWeakPassword reports whether err is a password policy rejection.
func IsWeakPassword(err error) bool { return hasTextCode(err, TextCodeWeakPassword) }

// IsInvalidUsername reports whether err is a username policy rejection.
func IsInvalidUsername(err error) bool { return hasTextCode(err, TextCodeInvalidUsername) }

// IsNoEmail reports whether err marks an account without a delivery email.
func IsNoEmail(err error) bool { return hasTextCode(err, TextCodeNoEmail) }

// IsSystemError reports whether err wraps an underlying store or crypto
// failure. Callers cannot distinguish which.
func IsSystemError(err error) bool { return hasTextCode(err, TextCodeSystem) }
