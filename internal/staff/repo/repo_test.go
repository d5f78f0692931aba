package repo

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identityentity "github.com/ovaphlow/pitchfork/service-gym/internal/identity/entity"
	identityrepo "github.com/ovaphlow/pitchfork/service-gym/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/database"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/utilities"
)

// testDB connects to DATABASE_TEST_URL and skips when it is unset.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_TEST_URL")
	if dsn == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}
	db, err := database.Connect(database.Config{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedIdentity(t *testing.T, db *sqlx.DB) (*identityrepo.IdentityRepo, string) {
	t.Helper()
	ids := identityrepo.NewIdentityRepo(db)
	require.NoError(t, ids.EnsureTable(t.Context()))
	i := &identityentity.Identity{
		ID:       utilities.NewKSUID(),
		Email:    utilities.NewKSUID() + "@repo.test",
		Metadata: identityentity.Metadata{FirstName: "Repo", Role: entity.RoleTrainer},
	}
	require.NoError(t, ids.Create(t.Context(), i))
	t.Cleanup(func() { _ = ids.Delete(context.Background(), i.ID) })
	return ids, i.ID
}

func TestStaffRepos(t *testing.T) {
	db := testDB(t)
	ctx := t.Context()
	ids, userID := seedIdentity(t, db)

	profiles := NewProfileRepo(db)
	permissions := NewPermissionRepo(db)
	trainers := NewTrainerRepo(db)
	require.NoError(t, profiles.EnsureTable(ctx))
	require.NoError(t, permissions.EnsureTable(ctx))
	require.NoError(t, trainers.EnsureTable(ctx))

	phone := "555-0100"
	require.NoError(t, profiles.Upsert(ctx, &entity.Profile{
		UserID: userID, FirstName: "Repo", LastName: "Test", Phone: &phone, Role: entity.RoleTrainer, LoginAccess: true,
	}))
	p, err := profiles.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Repo", p.FirstName)
	assert.Equal(t, phone, *p.Phone)
	assert.Equal(t, entity.RoleTrainer, p.Role)

	flags, err := entity.MergeFlags(map[string]bool{"clients_view": false})
	require.NoError(t, err)
	require.NoError(t, permissions.Upsert(ctx, &entity.PermissionSet{UserID: userID, Flags: flags}))
	ps, err := permissions.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, flags, ps.Flags)

	tr := entity.NewTrainer(userID, entity.PayrollPerSession, 42.5, 10, "admin")
	require.NoError(t, trainers.Upsert(ctx, &tr))
	got, err := trainers.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 42.5, got.SessionRate)
	assert.Zero(t, got.PackagePercentage)

	require.NoError(t, trainers.Delete(ctx, userID))
	require.NoError(t, permissions.Delete(ctx, userID))
	require.NoError(t, profiles.Delete(ctx, userID))
	_, err = profiles.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = trainers.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)

	// rows cascade with the identity
	require.NoError(t, profiles.Upsert(ctx, &entity.Profile{UserID: userID, FirstName: "R", LastName: "T", Role: entity.RoleStaff}))
	require.NoError(t, ids.Delete(ctx, userID))
	_, err = profiles.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdentityRepo_EmailTaken(t *testing.T) {
	db := testDB(t)
	ids, userID := seedIdentity(t, db)

	existing, err := ids.GetByID(t.Context(), userID)
	require.NoError(t, err)

	err = ids.Create(t.Context(), &identityentity.Identity{ID: utilities.NewKSUID(), Email: existing.Email})
	assert.ErrorIs(t, err, identityrepo.ErrEmailTaken)
}
