package address

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestFindForUserScopesToOwner(t *testing.T) {
	conn := dbtest.Open(t)
	owner := dbtest.MustUser(t, conn, enums.UserRoleCustomer)
	other := dbtest.MustUser(t, conn, enums.UserRoleCustomer)
	addr := dbtest.MustAddress(t, conn, owner.ID)
	repo := NewRepository(conn)

	got, err := repo.FindForUser(context.Background(), owner.ID, addr.ID)
	if err != nil {
		t.Fatalf("FindForUser() error = %v", err)
	}
	if got.ID != addr.ID {
		t.Fatalf("expected address %s, got %s", addr.ID, got.ID)
	}

	if _, err := repo.FindForUser(context.Background(), other.ID, addr.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for foreign address, got %v", err)
	}
	if _, err := repo.FindForUser(context.Background(), owner.ID, uuid.New()); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for unknown address, got %v", err)
	}
}

func TestSnapshotCopiesFields(t *testing.T) {
	conn := dbtest.Open(t)
	owner := dbtest.MustUser(t, conn, enums.UserRoleCustomer)
	addr := dbtest.MustAddress(t, conn, owner.ID)

	snap := Snapshot(addr, "ORD-TEST0001")
	if snap.OrderID != "ORD-TEST0001" {
		t.Fatalf("unexpected order id %q", snap.OrderID)
	}
	if snap.FullName != addr.FullName || snap.Line1 != addr.Line1 || snap.Country != addr.Country {
		t.Fatalf("snapshot does not match address: %+v", snap)
	}
	if snap.ID == uuid.Nil {
		t.Fatal("expected snapshot id to be set")
	}
}
