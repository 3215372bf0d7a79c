package stores

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestRepositoryMembership(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	owner := dbtest.MustUser(t, conn, enums.UserRoleVendor)
	stranger := dbtest.MustUser(t, conn, enums.UserRoleVendor)
	store := dbtest.MustStore(t, conn, owner.ID, dbtest.WithCommission(90), dbtest.WithAutoComplete())

	repo := NewRepository(conn)

	ok, err := repo.IsMember(ctx, store.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsMember(ctx, store.ID, stranger.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindByIDs(ctx, []uuid.UUID{store.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[store.ID].AutoCompleteOrder)
	assert.Equal(t, "90", found[store.ID].CommissionPct.String())
}
