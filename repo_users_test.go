package userrepo_test

import (
	"context"
	"database/sql"
	"testing"

	userrepo "github.com/eedrummer/simple-user-repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupStore(t *testing.T) (*userrepo.BunStore, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	store := userrepo.NewBunStore(bunDB)
	require.NoError(t, store.CreateTables(context.Background()))

	return store, func() { bunDB.Close() }
}

func seedUser(t *testing.T, store *userrepo.BunStore, username string, attrs map[string]string) *userrepo.User {
	t.Helper()

	hash, err := userrepo.SaltedHash(12345, "CorrectHorse1")
	require.NoError(t, err)

	user := &userrepo.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		PasswordSalt: 12345,
	}
	for name, value := range attrs {
		user.SetAttribute(name, value)
	}

	require.NoError(t, store.Insert(context.Background(), user))
	return user
}

func TestBunStoreInsertAndFind(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	seeded := seedUser(t, store, "alice", map[string]string{
		userrepo.AttrFirstName: "Alice",
		userrepo.AttrLastName:  "Adams",
	})
	require.NotEqual(t, uuid.Nil, seeded.ID)

	t.Run("by username with relations", func(t *testing.T) {
		user, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "Alice", user.NormalAttributes()[userrepo.AttrFirstName])
		assert.Equal(t, "Adams", user.NormalAttributes()[userrepo.AttrLastName])
	})

	t.Run("by id", func(t *testing.T) {
		user, err := store.FindByID(ctx, seeded.ID.String())
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := store.FindByUsername(ctx, "ghost")
		require.Error(t, err)
		assert.True(t, userrepo.IsUserNotFound(err))
	})

	t.Run("duplicate username is rejected by the schema", func(t *testing.T) {
		dup := &userrepo.User{
			Username:     "alice",
			PasswordHash: seeded.PasswordHash,
			PasswordSalt: seeded.PasswordSalt,
		}
		assert.Error(t, store.Insert(ctx, dup))
	})
}

func TestBunStoreUpdateReconcilesAttributes(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	seedUser(t, store, "alice", map[string]string{
		userrepo.AttrFirstName: "Alice",
		userrepo.AttrLocality:  "Bedford",
	})

	user, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)

	user.SetAttribute(userrepo.AttrFirstName, "Alicia")
	user.FailedAttempts = 2
	require.NoError(t, store.Update(ctx, user))

	got, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, got.FailedAttempts)

	attrs := got.NormalAttributes()
	assert.Equal(t, "Alicia", attrs[userrepo.AttrFirstName])
	assert.Equal(t, "Bedford", attrs[userrepo.AttrLocality])
	assert.Len(t, got.Attributes, 2)
}

func TestBunStoreUpdatePersistsZeroValues(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	seedUser(t, store, "alice", nil)

	user, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)

	pending := "deadbeef"
	user.FailedAttempts = 2
	user.EmailConfirmed = true
	user.ConfirmationHash = &pending
	require.NoError(t, store.Update(ctx, user))

	user, err = store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, user.FailedAttempts)
	require.True(t, user.EmailConfirmed)
	require.NotNil(t, user.ConfirmationHash)

	user.FailedAttempts = 0
	user.EmailConfirmed = false
	user.ConfirmationHash = nil
	require.NoError(t, store.Update(ctx, user))

	got, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedAttempts)
	assert.False(t, got.EmailConfirmed)
	assert.Nil(t, got.ConfirmationHash)
}

func TestBunStoreUpdateMissingUser(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()

	err := store.Update(context.Background(), &userrepo.User{
		ID:       uuid.New(),
		Username: "ghost",
	})
	require.Error(t, err)
	assert.True(t, userrepo.IsUserNotFound(err))
}

func TestBunStoreUpdateKeepsUnchangedAttributes(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	seedUser(t, store, "alice", map[string]string{
		userrepo.AttrFirstName: "Alice",
		userrepo.AttrLastName:  "Adams",
	})

	user, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)

	before := make(map[string]uuid.UUID, len(user.Attributes))
	for _, attr := range user.Attributes {
		before[attr.Name] = attr.ID
	}

	// A credential-only update must not rewrite the attribute rows.
	user.FailedAttempts = 1
	require.NoError(t, store.Update(ctx, user))

	got, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got.Attributes, 2)
	for _, attr := range got.Attributes {
		assert.Equal(t, before[attr.Name], attr.ID)
	}
}

func TestBunStoreDelete(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	user := seedUser(t, store, "alice", map[string]string{userrepo.AttrFirstName: "Alice"})

	role, err := store.FindOrCreateRole(ctx, userrepo.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, store.AttachRole(ctx, user, role))

	require.NoError(t, store.Delete(ctx, user))

	_, err = store.FindByUsername(ctx, "alice")
	assert.True(t, userrepo.IsUserNotFound(err))

	// Roles outlive their members.
	again, err := store.FindOrCreateRole(ctx, userrepo.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, role.ID, again.ID)

	members, err := store.FindByRole(ctx, userrepo.RoleAdmin)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestBunStoreRoles(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	alice := seedUser(t, store, "alice", nil)
	bob := seedUser(t, store, "bob", nil)

	role, err := store.FindOrCreateRole(ctx, "EDITOR")
	require.NoError(t, err)

	t.Run("find or create is idempotent", func(t *testing.T) {
		again, err := store.FindOrCreateRole(ctx, "EDITOR")
		require.NoError(t, err)
		assert.Equal(t, role.ID, again.ID)
	})

	t.Run("attach is idempotent", func(t *testing.T) {
		require.NoError(t, store.AttachRole(ctx, alice, role))
		require.NoError(t, store.AttachRole(ctx, alice, role))
		require.NoError(t, store.AttachRole(ctx, bob, role))

		members, err := store.FindByRole(ctx, "EDITOR")
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("membership loads with the user", func(t *testing.T) {
		user, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, user.HasRole("EDITOR"))
		assert.False(t, user.HasRole(userrepo.RoleAdmin))
	})

	t.Run("delete role removes memberships", func(t *testing.T) {
		require.NoError(t, store.DeleteRole(ctx, "EDITOR"))

		_, err := store.FindByRole(ctx, "EDITOR")
		require.NoError(t, err)

		user, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, user.HasRole("EDITOR"))
	})

	t.Run("deleting a missing role errors", func(t *testing.T) {
		err := store.DeleteRole(ctx, "NOPE")
		require.Error(t, err)
		assert.True(t, userrepo.IsUserNotFound(err))
	})
}

func TestBunStoreFindByPattern(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	seedUser(t, store, "alice", nil)
	seedUser(t, store, "Alicia", nil)
	seedUser(t, store, "bob", nil)

	users, err := store.FindByPattern(ctx, "ali%")
	require.NoError(t, err)
	require.Len(t, users, 2)

	users, err = store.FindByPattern(ctx, "nobody%")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestBunStoreFindByAttribute(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	seedUser(t, store, "alice", map[string]string{userrepo.AttrLocality: "Bedford"})
	seedUser(t, store, "bob", map[string]string{userrepo.AttrLocality: "Bedford"})
	seedUser(t, store, "carol", map[string]string{userrepo.AttrLocality: "Cambridge"})

	users, err := store.FindByAttribute(ctx, userrepo.AttrLocality, "Bedford")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = store.FindByAttribute(ctx, userrepo.AttrLocality, "Nowhere")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestBunStoreFindRange(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	seedUser(t, store, "carol", map[string]string{userrepo.AttrLastName: "Young"})
	seedUser(t, store, "alice", map[string]string{userrepo.AttrLastName: "Adams"})
	seedUser(t, store, "bob", map[string]string{userrepo.AttrLastName: "Mills"})

	t.Run("sorted by username column", func(t *testing.T) {
		users, err := store.FindRange(ctx, 0, 10, userrepo.SortByUsername)
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, "bob", users[1].Username)
		assert.Equal(t, "carol", users[2].Username)
	})

	t.Run("paged", func(t *testing.T) {
		users, err := store.FindRange(ctx, 1, 1, userrepo.SortByUsername)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "bob", users[0].Username)
	})

	t.Run("sorted through the attribute join", func(t *testing.T) {
		users, err := store.FindRange(ctx, 0, 10, userrepo.SortKey(userrepo.AttrLastName))
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, "bob", users[1].Username)
		assert.Equal(t, "carol", users[2].Username)
	})
}

func TestBunStoreListAll(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	seedUser(t, store, "alice", nil)
	seedUser(t, store, "bob", nil)

	users, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestBunStoreRunInTx(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	err := store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txStore := store.WithTx(tx)

		hash, err := userrepo.SaltedHash(1, "CorrectHorse1")
		if err != nil {
			return err
		}
		return txStore.Insert(ctx, &userrepo.User{
			Username:     "alice",
			PasswordHash: hash,
			PasswordSalt: 1,
		})
	})
	require.NoError(t, err)

	_, err = store.FindByUsername(ctx, "alice")
	require.NoError(t, err)

	err = store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txStore := store.WithTx(tx)

		hash, err := userrepo.SaltedHash(1, "CorrectHorse1")
		if err != nil {
			return err
		}
		if err := txStore.Insert(ctx, &userrepo.User{
			Username:     "bob",
			PasswordHash: hash,
			PasswordSalt: 1,
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	// The rollback leaves no trace of bob.
	_, err = store.FindByUsername(ctx, "bob")
	assert.True(t, userrepo.IsUserNotFound(err))
}

func TestManagerOverBunStore(t *testing.T) {
	store, teardown := setupStore(t)
	defer teardown()
	ctx := context.Background()

	mgr := userrepo.NewManager(store)

	user, err := mgr.Register(ctx, "alice", "CorrectHorse1")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, user.ID)

	require.NoError(t, mgr.Authenticate(ctx, "alice", "CorrectHorse1"))

	for i := 0; i < 3; i++ {
		err := mgr.Authenticate(ctx, "alice", "wrong")
		assert.True(t, userrepo.IsAuthenticationFailed(err))
	}
	err = mgr.Authenticate(ctx, "alice", "CorrectHorse1")
	assert.True(t, userrepo.IsLockedUser(err))

	require.NoError(t, mgr.Unlock(ctx, "alice"))
	require.NoError(t, mgr.Authenticate(ctx, "alice", "CorrectHorse1"))

	token, err := mgr.Reset(ctx, "alice")
	require.Error(t, err)
	assert.True(t, userrepo.IsNoEmail(err))
	assert.Empty(t, token)

	user, err = mgr.Get(ctx, "alice")
	require.NoError(t, err)
	user.Email = "alice@example.com"
	require.NoError(t, mgr.Save(ctx, user))

	token, err = mgr.Reset(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, mgr.CheckConfirmation(ctx, "alice", token))

	require.NoError(t, mgr.ModifyPassword(ctx, "alice", "NewHorse2"))
	assert.False(t, mgr.CheckConfirmation(ctx, "alice", token))
	require.NoError(t, mgr.Authenticate(ctx, "alice", "NewHorse2"))
}
