package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// AccessTokenPayload is what the issuer knows about the caller at mint time.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	ActiveStoreID *uuid.UUID
	Role          enums.UserRole
	JTI           string
}

// AccessTokenClaims is the JWT body shared by every marketplace client.
type AccessTokenClaims struct {
	UserID        uuid.UUID      `json:"user_id"`
	ActiveStoreID *uuid.UUID     `json:"active_store_id,omitempty"`
	Role          enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller extracted from verified claims.
type Principal struct {
	UserID  uuid.UUID
	Role    enums.UserRole
	StoreID *uuid.UUID
	TokenID string
}

func (c *AccessTokenClaims) principal() Principal {
	return Principal{
		UserID:  c.UserID,
		Role:    c.Role,
		StoreID: c.ActiveStoreID,
		TokenID: c.ID,
	}
}
