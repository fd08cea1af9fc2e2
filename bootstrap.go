package userrepo

import (
	"context"
	"strings"
)

// EnsureDefaultAdmin makes sure the ADMIN role exists and that at least
// one user holds it. When no admin exists and a default admin account
// is configured, it creates that account with a generated initial
// password and returns it for out-of-band delivery; the return value is
// empty when nothing was created. Meant for an external bootstrap
// routine on startup, not for request handlers.
func (m *Manager) EnsureDefaultAdmin(ctx context.Context) (string, error) {
	role, err := m.store.FindOrCreateRole(ctx, RoleAdmin)
	if err != nil {
		return "", m.systemFailure("bootstrap", err)
	}

	admins, err := m.store.FindByRole(ctx, RoleAdmin)
	if err != nil {
		return "", m.systemFailure("bootstrap", err)
	}
	if len(admins) > 0 {
		return "", nil
	}

	if strings.TrimSpace(m.adminUsername) == "" {
		m.logger.Warn("bootstrap: no default admin configured, cannot create default user")
		return "", nil
	}

	initial := RandomThrowawayPassword()
	salt, err := NewSalt(m.entropy)
	if err != nil {
		return "", m.systemFailure("bootstrap", err)
	}
	hash, err := SaltedHash(salt, initial)
	if err != nil {
		return "", m.systemFailure("bootstrap", err)
	}

	admin := &User{
		Username:     m.adminUsername,
		Email:        m.adminEmail,
		PasswordHash: hash,
		PasswordSalt: salt,
		Attributes:   []*UserAttribute{},
	}

	if err := m.store.Insert(ctx, admin); err != nil {
		return "", m.systemFailure("bootstrap", err)
	}
	if err := m.store.AttachRole(ctx, admin, role); err != nil {
		return "", m.systemFailure("bootstrap", err)
	}

	return initial, nil
}
