package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type contextKey string

const (
	ctxUserID  contextKey = "user_id"
	ctxRole    contextKey = "actor_role"
	ctxStoreID contextKey = "store_id"
)

func lookup(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func with(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func UserIDFromContext(ctx context.Context) string  { return lookup(ctx, ctxUserID) }
func RoleFromContext(ctx context.Context) string    { return lookup(ctx, ctxRole) }
func StoreIDFromContext(ctx context.Context) string { return lookup(ctx, ctxStoreID) }

// WithUserID, WithRole and WithStoreID are set by Auth; tests use them to
// fake an authenticated request.
func WithUserID(ctx context.Context, userID string) context.Context {
	return with(ctx, ctxUserID, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return with(ctx, ctxRole, role)
}

func WithStoreID(ctx context.Context, storeID string) context.Context {
	return with(ctx, ctxStoreID, storeID)
}

// CurrentUser returns the authenticated user and platform role.
func CurrentUser(ctx context.Context) (uuid.UUID, enums.UserRole, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(RoleFromContext(ctx))
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return userID, role, nil
}

// ActiveStoreID returns the store selected in the token, if any.
func ActiveStoreID(ctx context.Context) (*uuid.UUID, error) {
	raw := StoreIDFromContext(ctx)
	if raw == "" {
		return nil, nil
	}
	storeID, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid store id")
	}
	return &storeID, nil
}
