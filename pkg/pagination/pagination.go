package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	separator = "|"
)

var errMalformed = errors.New("malformed cursor")

// Params is the raw paging input accepted by list operations.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks the last row of a page in (created_at DESC, key DESC) order.
// Key is the row's primary key in text form.
type Cursor struct {
	CreatedAt time.Time
	Key       string
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer fetches one extra row so callers can tell a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Encode renders c as an opaque, URL-safe token.
func Encode(c Cursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + separator + c.Key
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode. An empty token means the first
// page and yields a nil cursor.
func Decode(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	at, key, ok := strings.Cut(string(raw), separator)
	if !ok || key == "" {
		return nil, errMalformed
	}
	createdAt, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", errMalformed, err)
	}
	return &Cursor{CreatedAt: createdAt, Key: key}, nil
}

// DecodeUUID is Decode for tables keyed by uuid; the key must parse.
func DecodeUUID(token string) (*Cursor, error) {
	c, err := Decode(token)
	if err != nil || c == nil {
		return c, err
	}
	if _, err := uuid.Parse(c.Key); err != nil {
		return nil, fmt.Errorf("%w: key: %v", errMalformed, err)
	}
	return c, nil
}

// Trim cuts a buffered result set down to limit rows and returns the token
// for the next page, or "" when rows was the last page.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if rows == nil {
		rows = []T{}
	}
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, Encode(cursorOf(rows[limit-1]))
}
