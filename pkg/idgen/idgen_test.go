package idgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func sequence(values ...string) Source {
	i := 0
	return func() string {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestGenerateSkipsTakenCandidates(t *testing.T) {
	gen, err := New(3, sequence("AAAA0001", "AAAA0002"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	taken := map[string]bool{"ORD-AAAA0001": true}
	id, err := gen.Generate(context.Background(), PrefixOrder, func(_ context.Context, c string) (bool, error) {
		return taken[c], nil
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if id != "ORD-AAAA0002" {
		t.Fatalf("expected second candidate, got %q", id)
	}
}

func TestGenerateExhaustionIsInternal(t *testing.T) {
	gen, _ := New(2, sequence("SAME0000"))
	calls := 0
	_, err := gen.Generate(context.Background(), PrefixSettlement, func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestGenerateWrapsLookupErrors(t *testing.T) {
	gen, _ := New(5, nil)
	_, err := gen.Generate(context.Background(), PrefixOrder, func(context.Context, string) (bool, error) {
		return false, errors.New("db down")
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestRandomSourceShape(t *testing.T) {
	code := RandomSource()
	if len(code) != codeLength {
		t.Fatalf("expected %d chars, got %q", codeLength, code)
	}
	if strings.ToUpper(code) != code {
		t.Fatalf("expected upper-case code, got %q", code)
	}
}

func TestNewRejectsZeroAttempts(t *testing.T) {
	if _, err := New(0, nil); err == nil {
		t.Fatal("expected error for zero attempts")
	}
}
