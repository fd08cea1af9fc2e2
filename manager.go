package userrepo

import (
	"context"
	"io"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// DefaultAttemptLimit is the number of consecutive failed logins a user
// gets before the account locks and requires admin intervention.
const DefaultAttemptLimit = 3

// Manager orchestrates registration, authentication, lockout, password
// change, and reset confirmation against a Store. It is stateless aside
// from configuration and safe for concurrent use; all durable state
// lives in the store.
type Manager struct {
	store          Store
	usernamePolicy UsernamePolicy
	passwordPolicy PasswordPolicy
	entropy        io.Reader
	attemptLimit   int
	adminUsername  string
	adminEmail     string
	base           *url.URL
	useHashID      bool
	logger         Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// NewManager builds a Manager over store. The default configuration
// enforces the default username policy, no password policy, an attempt
// limit of 3, and crypto/rand entropy.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:          store,
		usernamePolicy: DefaultUsernamePolicy{},
		attemptLimit:   DefaultAttemptLimit,
		logger:         defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// WithAttemptLimit sets the lockout threshold. Values below 1 keep the
// default.
func WithAttemptLimit(limit int) ManagerOption {
	return func(m *Manager) {
		if limit > 0 {
			m.attemptLimit = limit
		}
	}
}

// WithUsernamePolicy replaces the username acceptability rule.
func WithUsernamePolicy(p UsernamePolicy) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.usernamePolicy = p
		}
	}
}

// WithPasswordPolicy sets the password acceptability rule. Without one,
// any non-empty password is accepted.
func WithPasswordPolicy(p PasswordPolicy) ManagerOption {
	return func(m *Manager) {
		m.passwordPolicy = p
	}
}

// WithEntropy replaces the salt and token source. The source must be
// cryptographically secure and safe for concurrent readers; this hook
// exists for tests.
func WithEntropy(src io.Reader) ManagerOption {
	return func(m *Manager) {
		m.entropy = src
	}
}

// WithDefaultAdmin configures the account seeded by EnsureDefaultAdmin.
func WithDefaultAdmin(username, email string) ManagerOption {
	return func(m *Manager) {
		m.adminUsername = username
		m.adminEmail = email
	}
}

// WithBaseURL records the base URL outward links are built from. The
// manager itself never constructs links; the value is exposed through
// BaseURL for the embedding application.
func WithBaseURL(raw string) ManagerOption {
	return func(m *Manager) {
		base, err := url.Parse(raw)
		if err != nil {
			m.logger.Error("invalid base url %q: %v", raw, err)
			return
		}
		m.base = base
	}
}

// WithHashIDSubjects derives deterministic user IDs from profile
// subjects when SaveProfile creates a user.
func WithHashIDSubjects() ManagerOption {
	return func(m *Manager) {
		m.useHashID = true
	}
}

// WithLogger replaces the default logger.
func WithLogger(l Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// AttemptLimit returns the configured lockout threshold.
func (m *Manager) AttemptLimit() int {
	return m.attemptLimit
}

// BaseURL returns the configured base URL, or empty when unset.
func (m *Manager) BaseURL() string {
	if m.base == nil {
		return ""
	}
	return m.base.String()
}

// Get returns the user record for username.
func (m *Manager) Get(ctx context.Context, username string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, invalidInput("username should never be empty")
	}
	return m.store.FindByUsername(ctx, username)
}

// Save persists a user record, inserting when it has no id yet.
func (m *Manager) Save(ctx context.Context, user *User) error {
	if user == nil {
		return invalidInput("user should never be nil")
	}

	var err error
	if user.ID == uuid.Nil {
		err = m.store.Insert(ctx, user)
	} else {
		err = m.store.Update(ctx, user)
	}
	if err != nil {
		return m.systemFailure("save", err)
	}
	return nil
}

// Delete removes the user and its attributes. Roles survive. A missing
// user is logged and ignored.
func (m *Manager) Delete(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return invalidInput("username should never be empty")
	}

	user, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			m.logger.Warn("delete: user could not be found: %s", username)
			return nil
		}
		return m.systemFailure("delete", err)
	}

	if err := m.store.Delete(ctx, user); err != nil {
		return m.systemFailure("delete", err)
	}
	return nil
}

// Find returns the users whose username matches the SQL LIKE pattern,
// case-insensitively.
func (m *Manager) Find(ctx context.Context, likePattern string) ([]*User, error) {
	if strings.TrimSpace(likePattern) == "" {
		return nil, invalidInput("likePattern should never be empty")
	}

	users, err := m.store.FindByPattern(ctx, likePattern)
	if err != nil {
		return nil, m.systemFailure("find", err)
	}
	return users, nil
}

// UserSummary is the row shape FindInRange produces: identity columns
// plus the flattened NORMAL attributes.
type UserSummary struct {
	ID         string            `json:"id"`
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// FindInRange pages through users ordered by sort, which is either a
// user column (USERNAME, EMAIL) or an attribute name sorted through the
// attribute-value join.
func (m *Manager) FindInRange(ctx context.Context, offset, count int, sort SortKey) ([]UserSummary, error) {
	users, err := m.store.FindRange(ctx, offset, count, sort)
	if err != nil {
		return nil, m.systemFailure("findInRange", err)
	}

	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{
			ID:         u.ID.String(),
			Username:   u.Username,
			Email:      u.Email,
			Attributes: u.NormalAttributes(),
		})
	}
	return out, nil
}

// FindRole returns the named role, creating it on first reference.
func (m *Manager) FindRole(ctx context.Context, name string) (*Role, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidInput("rolename should never be empty")
	}

	role, err := m.store.FindOrCreateRole(ctx, name)
	if err != nil {
		return nil, m.systemFailure("findRole", err)
	}
	return role, nil
}

// DeleteRole removes a role and its memberships. A missing role is
// logged and ignored.
func (m *Manager) DeleteRole(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidInput("rolename should never be empty")
	}

	if err := m.store.DeleteRole(ctx, name); err != nil {
		if IsUserNotFound(err) {
			m.logger.Warn("deleteRole: role could not be found: %s", name)
			return nil
		}
		return m.systemFailure("deleteRole", err)
	}
	return nil
}

// Register creates a new account. Every validation step runs before any
// write: a rejected registration leaves no partial state behind.
func (m *Manager) Register(ctx context.Context, username, password string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, invalidInput("username should never be empty")
	}

	_, err := m.store.FindByUsername(ctx, username)
	if err == nil {
		return nil, duplicateUser(username)
	}
	if !IsUserNotFound(err) {
		return nil, m.systemFailure("register", err)
	}

	if err := m.usernamePolicy.Validate(username); err != nil {
		return nil, err
	}

	if strings.TrimSpace(password) == "" {
		return nil, invalidInput("password should never be empty")
	}
	if m.passwordPolicy != nil {
		if err := m.passwordPolicy.Accept(password); err != nil {
			return nil, err
		}
	}

	salt, err := NewSalt(m.entropy)
	if err != nil {
		return nil, m.systemFailure("register", err)
	}
	hash, err := SaltedHash(salt, password)
	if err != nil {
		return nil, m.systemFailure("register", err)
	}

	user := &User{
		Username:       username,
		PasswordHash:   hash,
		PasswordSalt:   salt,
		FailedAttempts: 0,
		Attributes:     []*UserAttribute{},
	}

	if err := m.store.Insert(ctx, user); err != nil {
		return nil, m.systemFailure("register", err)
	}

	return user, nil
}

// Authenticate verifies username/password. Unknown users and wrong
// passwords fail identically; locked accounts fail with a distinct
// error before any hash comparison. Each failed comparison durably
// increments the attempt counter, and a successful one resets it.
func (m *Manager) Authenticate(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" {
		return invalidInput("username should never be empty")
	}

	user, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			return ErrAuthenticationFailed
		}
		return m.systemFailure("authenticate", err)
	}

	if user.Locked(m.attemptLimit) {
		return ErrLockedUser
	}

	// Blank credentials, whitespace included, never hash and never
	// consume an attempt.
	if strings.TrimSpace(password) == "" {
		return ErrAuthenticationFailed
	}

	hash, err := SaltedHash(user.PasswordSalt, password)
	if err != nil {
		return m.systemFailure("authenticate", err)
	}

	if hash != user.PasswordHash {
		user.FailedAttempts++
		if err := m.store.Update(ctx, user); err != nil {
			return m.systemFailure("authenticate", err)
		}
		return ErrAuthenticationFailed
	}

	user.FailedAttempts = 0
	if err := m.store.Update(ctx, user); err != nil {
		return m.systemFailure("authenticate", err)
	}
	return nil
}

// Unlock administratively clears the failed attempt counter. The error
// for a missing user matches Authenticate so the unlock surface leaks
// nothing either.
func (m *Manager) Unlock(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return invalidInput("username should never be empty")
	}

	user, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			return ErrAuthenticationFailed
		}
		return m.systemFailure("unlock", err)
	}

	user.FailedAttempts = 0
	if err := m.store.Update(ctx, user); err != nil {
		return m.systemFailure("unlock", err)
	}
	return nil
}

// ModifyPassword sets a new password under a freshly generated salt and
// invalidates any outstanding reset confirmation.
func (m *Manager) ModifyPassword(ctx context.Context, username, newPassword string) error {
	if strings.TrimSpace(username) == "" {
		return invalidInput("username should never be empty")
	}

	user, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			return err
		}
		return m.systemFailure("modifyPassword", err)
	}

	if strings.TrimSpace(newPassword) == "" {
		return invalidInput("password should never be empty")
	}
	if m.passwordPolicy != nil {
		if err := m.passwordPolicy.Accept(newPassword); err != nil {
			return err
		}
	}

	if err := m.setPassword(ctx, user, newPassword); err != nil {
		return m.systemFailure("modifyPassword", err)
	}
	return nil
}

// setPassword rotates the salt, stores the new hash, and clears any
// pending confirmation hash: a password change invalidates an
// outstanding reset.
func (m *Manager) setPassword(ctx context.Context, user *User, password string) error {
	salt, err := NewSalt(m.entropy)
	if err != nil {
		return err
	}
	hash, err := SaltedHash(salt, password)
	if err != nil {
		return err
	}

	user.PasswordSalt = salt
	user.PasswordHash = hash
	user.ConfirmationHash = nil

	return m.store.Update(ctx, user)
}

// Reset starts the password reset flow: it stores the salted hash of a
// fresh confirmation token and returns the plaintext token for the
// caller to deliver out of band. This package never sends email.
func (m *Manager) Reset(ctx context.Context, username string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", invalidInput("username should never be empty")
	}

	user, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			return "", ErrAuthenticationFailed
		}
		return "", m.systemFailure("reset", err)
	}

	if strings.TrimSpace(user.Email) == "" {
		return "", ErrNoEmail
	}

	token, err := NewConfirmationToken(m.entropy)
	if err != nil {
		return "", m.systemFailure("reset", err)
	}

	hash, err := SaltedHash(user.PasswordSalt, token)
	if err != nil {
		return "", m.systemFailure("reset", err)
	}

	user.ConfirmationHash = &hash
	if err := m.store.Update(ctx, user); err != nil {
		return "", m.systemFailure("reset", err)
	}

	return token, nil
}

// CheckConfirmation verifies a reset token. It never returns an error:
// confirmation endpoints are reached through untrusted links, so every
// failure collapses to false and only the internal log records whether
// the username was unknown, the token mismatched, or the store failed.
// On a match the account's email is marked confirmed.
func (m *Manager) CheckConfirmation(ctx context.Context, username, confirmation string) bool {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(confirmation) == "" {
		return false
	}

	user, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			m.logger.Info("checkConfirmation: unknown user: %s", username)
		} else {
			m.logger.Error("checkConfirmation: store failure: %v", err)
		}
		return false
	}

	if user.ConfirmationHash == nil {
		m.logger.Info("checkConfirmation: no reset pending for %s", username)
		return false
	}

	hash, err := SaltedHash(user.PasswordSalt, confirmation)
	if err != nil {
		m.logger.Error("checkConfirmation: hash failure: %v", err)
		return false
	}

	if hash != *user.ConfirmationHash {
		m.logger.Info("checkConfirmation: token mismatch for %s", username)
		return false
	}

	if !user.EmailConfirmed {
		user.EmailConfirmed = true
		if err := m.store.Update(ctx, user); err != nil {
			m.logger.Error("checkConfirmation: store failure: %v", err)
			return false
		}
	}

	return true
}

// systemFailure logs the full underlying failure at the boundary and
// returns the generic system error. Callers cannot distinguish a store
// outage from a crypto failure, and no hash material leaves the log.
func (m *Manager) systemFailure(op string, err error) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		m.logger.Error("%s: %s details=%s", op, rich.Message, print.MaybePrettyJSON(rich.Metadata))
	} else {
		m.logger.Error("%s: %v", op, err)
	}
	return systemError(err)
}
