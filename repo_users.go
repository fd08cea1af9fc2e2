package userrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunStore is the bun-backed Store implementation. All reads and writes
// go through a single bun.IDB, which is the *bun.DB by default; WithTx
// returns a view scoped to one transaction so a caller can give a
// manager operation a single transaction boundary.
type BunStore struct {
	db   *bun.DB
	idb  bun.IDB
	repo repository.Repository[*User]
}

var _ Store = (*BunStore)(nil)

// NewBunStore builds a Store over db and registers the m2m join model.
func NewBunStore(db *bun.DB) *BunStore {
	db.RegisterModel((*UserToRole)(nil))

	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &BunStore{
		db:   db,
		idb:  db,
		repo: repo,
	}
}

// WithTx returns a Store view that runs every operation on tx.
func (s *BunStore) WithTx(tx bun.IDB) Store {
	return &BunStore{
		db:   s.db,
		idb:  tx,
		repo: s.repo,
	}
}

// RunInTx runs fn inside a transaction. Combine with WithTx to scope a
// manager operation to one boundary.
func (s *BunStore) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return s.db.RunInTx(ctx, opts, fn)
	}
}

// CreateTables sets up the schema. Embedding applications with their own
// migration tooling can skip this; the tests rely on it.
func (s *BunStore) CreateTables(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*User)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := s.db.NewCreateTable().Model((*Role)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := s.db.NewCreateTable().Model((*UserAttribute)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := s.db.NewCreateTable().Model((*UserToRole)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		ForeignKey(`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	return nil
}

func (s *BunStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, "?TableAlias.username = ?", username)
}

func (s *BunStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, "?TableAlias.id = ?", id)
}

func (s *BunStore) findOne(ctx context.Context, where string, arg any) (*User, error) {
	record := &User{}
	err := s.idb.NewSelect().
		Model(record).
		Relation("Attributes").
		Relation("Roles").
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, NewUserNotFound(toString(arg))
		}
		return nil, err
	}
	return record, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func (s *BunStore) FindByAttribute(ctx context.Context, name, value string) ([]*User, error) {
	var users []*User
	err := s.idb.NewSelect().
		Model(&users).
		Relation("Attributes").
		Relation("Roles").
		Join("JOIN user_attributes AS ua ON ua.user_id = usr.id").
		Where("ua.attr_name = ?", name).
		Where("ua.attr_value = ?", value).
		OrderExpr("ua.attr_value ASC, usr.username ASC").
		Scan(ctx)
	return users, err
}

func (s *BunStore) FindByPattern(ctx context.Context, likePattern string) ([]*User, error) {
	var users []*User
	err := s.idb.NewSelect().
		Model(&users).
		Relation("Attributes").
		Relation("Roles").
		Where("lower(?TableAlias.username) LIKE lower(?)", likePattern).
		OrderExpr("lower(usr.username) ASC").
		Scan(ctx)
	return users, err
}

func (s *BunStore) FindRange(ctx context.Context, offset, count int, sort SortKey) ([]*User, error) {
	var users []*User
	q := s.idb.NewSelect().
		Model(&users).
		Relation("Attributes").
		Relation("Roles")

	switch sort {
	case SortByUsername:
		q = q.OrderExpr("lower(usr.username) ASC")
	case SortByEmail:
		q = q.OrderExpr("lower(usr.email) ASC")
	default:
		// Arbitrary sort keys name an attribute; secondary sort through
		// the attribute-value join.
		q = q.Join("JOIN user_attributes AS ua ON ua.user_id = usr.id").
			Where("ua.attr_name = ?", string(sort)).
			OrderExpr("ua.attr_value ASC")
	}

	err := q.Offset(offset).Limit(count).Scan(ctx)
	return users, err
}

func (s *BunStore) ListAll(ctx context.Context) ([]*User, error) {
	var users []*User
	err := s.idb.NewSelect().
		Model(&users).
		Relation("Attributes").
		Relation("Roles").
		OrderExpr("lower(usr.username) ASC").
		Scan(ctx)
	return users, err
}

func (s *BunStore) Insert(ctx context.Context, user *User) error {
	if user == nil {
		return invalidInput("user should never be nil")
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.Updated = &now

	if _, err := s.repo.CreateTx(ctx, s.idb, user); err != nil {
		return err
	}

	return s.insertAttributes(ctx, user)
}

func (s *BunStore) Update(ctx context.Context, user *User) error {
	if user == nil || user.ID == uuid.Nil {
		return invalidInput("user record must carry an id")
	}

	now := time.Now()
	user.Updated = &now

	// Explicit column list so zero values persist: a reset attempt
	// counter, a cleared confirmation hash, and a withdrawn email
	// confirmation are all states this package must be able to store.
	res, err := s.idb.NewUpdate().
		Model(user).
		Column("username", "email", "password_hash", "password_salt",
			"failed_attempts", "email_confirmed", "confirmation_hash", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewUserNotFound(user.Username)
	}

	// Reconcile the owned attribute set when it was loaded. A nil set
	// means the caller holds a partial record; leave stored rows alone.
	if user.Attributes == nil {
		return nil
	}

	var current []*UserAttribute
	if err := s.idb.NewSelect().
		Model(&current).
		Where("user_id = ?", user.ID).
		Scan(ctx); err != nil {
		return err
	}
	if attributesEqual(current, user.Attributes) {
		return nil
	}

	if _, err := s.idb.NewDelete().
		Model((*UserAttribute)(nil)).
		Where("user_id = ?", user.ID).
		Exec(ctx); err != nil {
		return err
	}

	return s.insertAttributes(ctx, user)
}

// attributesEqual compares two attribute sets by content, ignoring order
// and ownership, so credential-only updates skip the attribute rewrite.
func attributesEqual(stored, incoming []*UserAttribute) bool {
	if len(stored) != len(incoming) {
		return false
	}
	matched := make([]bool, len(stored))
	for _, attr := range incoming {
		found := false
		for i, cur := range stored {
			if !matched[i] && cur.Equal(attr) {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *BunStore) insertAttributes(ctx context.Context, user *User) error {
	if len(user.Attributes) == 0 {
		return nil
	}

	for _, attr := range user.Attributes {
		attr.UserID = user.ID
		if attr.ID == uuid.Nil {
			attr.ID = uuid.New()
		}
	}

	_, err := s.idb.NewInsert().Model(&user.Attributes).Exec(ctx)
	return err
}

func (s *BunStore) Delete(ctx context.Context, user *User) error {
	if user == nil || user.ID == uuid.Nil {
		return invalidInput("user record must carry an id")
	}

	// Attributes cascade with the user; role memberships are dropped but
	// the roles themselves survive.
	if _, err := s.idb.NewDelete().
		Model((*UserAttribute)(nil)).
		Where("user_id = ?", user.ID).
		Exec(ctx); err != nil {
		return err
	}

	if _, err := s.idb.NewDelete().
		Model((*UserToRole)(nil)).
		Where("user_id = ?", user.ID).
		Exec(ctx); err != nil {
		return err
	}

	_, err := s.idb.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", user.ID).
		Exec(ctx)
	return err
}

func (s *BunStore) FindOrCreateRole(ctx context.Context, name string) (*Role, error) {
	role := &Role{}
	err := s.idb.NewSelect().
		Model(role).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, sql.ErrNoRows) && !repository.IsRecordNotFound(err) {
		return nil, err
	}

	role = &Role{ID: uuid.New(), Name: name}
	if _, err := s.idb.NewInsert().Model(role).Exec(ctx); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *BunStore) DeleteRole(ctx context.Context, name string) error {
	role := &Role{}
	err := s.idb.NewSelect().
		Model(role).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return NewUserNotFound(name)
		}
		return err
	}

	if _, err := s.idb.NewDelete().
		Model((*UserToRole)(nil)).
		Where("role_id = ?", role.ID).
		Exec(ctx); err != nil {
		return err
	}

	_, err = s.idb.NewDelete().
		Model((*Role)(nil)).
		Where("id = ?", role.ID).
		Exec(ctx)
	return err
}

func (s *BunStore) FindByRole(ctx context.Context, name string) ([]*User, error) {
	var users []*User
	err := s.idb.NewSelect().
		Model(&users).
		Join("JOIN user_roles AS ur ON ur.user_id = usr.id").
		Join("JOIN roles AS rol ON rol.id = ur.role_id").
		Where("rol.name = ?", name).
		OrderExpr("lower(usr.username) ASC").
		Scan(ctx)
	return users, err
}

func (s *BunStore) AttachRole(ctx context.Context, user *User, role *Role) error {
	if user == nil || role == nil {
		return invalidInput("user and role must not be nil")
	}

	_, err := s.idb.NewInsert().
		Model(&UserToRole{UserID: user.ID, RoleID: role.ID}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}
