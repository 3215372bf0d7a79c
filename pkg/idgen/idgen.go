package idgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

const (
	PrefixOrder      = "ORD"
	PrefixSettlement = "STL"
	PrefixCoupon     = "CPN"

	codeLength = 8
)

// ExistsFunc reports whether a candidate id is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Source produces random candidates. Tests swap it for a deterministic one.
type Source func() string

// RandomSource draws an upper-case code from uuid randomness.
func RandomSource() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:codeLength])
}

// Generator hands out unique, prefixed short codes.
type Generator struct {
	maxAttempts int
	source      Source
}

func New(maxAttempts int, source Source) (*Generator, error) {
	if maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1")
	}
	if source == nil {
		source = RandomSource
	}
	return &Generator{maxAttempts: maxAttempts, source: source}, nil
}

// Generate tries up to maxAttempts candidates and returns the first one exists
// rejects. Exhaustion is an internal error and must not be retried by callers.
func (g *Generator) Generate(ctx context.Context, prefix string, exists ExistsFunc) (string, error) {
	if exists == nil {
		return "", fmt.Errorf("exists func required")
	}
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := format(prefix, g.source())
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check id uniqueness")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("could not allocate unique %s id after %d attempts", prefix, g.maxAttempts))
}

func format(prefix, code string) string {
	if prefix == "" {
		return code
	}
	return prefix + "-" + code
}
