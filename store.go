package userrepo

import "context"

// SortKey selects the ordering for FindRange. SortByUsername and
// SortByEmail sort on the user columns directly; any other value is
// treated as an attribute name and sorts through an attribute-value
// join, returning only users that carry that attribute.
type SortKey string

const (
	SortByUsername SortKey = "USERNAME"
	SortByEmail    SortKey = "EMAIL"
)

// Store is the durable storage the account manager reads and writes
// through. It is the sole serialization point: every manager operation
// is a read-modify-write against one user record, and implementations
// decide the isolation each call gets. Lookups return a USER_NOT_FOUND
// error rather than a nil record.
//
// Find methods load the user's attributes and roles.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByAttribute returns the users carrying attribute name with the
	// given value, ordered by attribute value then username.
	FindByAttribute(ctx context.Context, name, value string) ([]*User, error)
	// FindByPattern matches usernames case-insensitively against a SQL
	// LIKE pattern.
	FindByPattern(ctx context.Context, likePattern string) ([]*User, error)
	FindRange(ctx context.Context, offset, count int, sort SortKey) ([]*User, error)
	ListAll(ctx context.Context) ([]*User, error)

	Insert(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	// Delete removes the user, its attributes, and its role memberships.
	// The roles themselves survive.
	Delete(ctx context.Context, user *User) error

	// FindOrCreateRole lazily creates the named role on first reference.
	FindOrCreateRole(ctx context.Context, name string) (*Role, error)
	DeleteRole(ctx context.Context, name string) error
	// FindByRole returns the users holding the named role.
	FindByRole(ctx context.Context, name string) ([]*User, error)
	// AttachRole records membership; it is a no-op when already attached.
	AttachRole(ctx context.Context, user *User, role *Role) error
}
