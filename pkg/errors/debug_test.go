package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestPGReadsEitherDriver(t *testing.T) {
	pgxErr := fmt.Errorf("insert wallet entry: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_wallet_entries_fund_reference"})
	got, ok := PG(pgxErr)
	if !ok || got.Code != "23505" || got.Constraint != "idx_wallet_entries_fund_reference" {
		t.Fatalf("unexpected pgx fields %+v ok=%v", got, ok)
	}

	pqErr := Wrap(CodeInternal, &pq.Error{Code: "23514", Table: "product_variations"}, "reserve stock")
	got, ok = PG(pqErr)
	if !ok || got.Code != "23514" || got.Table != "product_variations" {
		t.Fatalf("unexpected pq fields %+v ok=%v", got, ok)
	}

	if _, ok := PG(fmt.Errorf("plain")); ok {
		t.Fatal("expected plain error to carry no postgres fields")
	}
}

func TestDumpFieldsOmitEmptyPostgresValues(t *testing.T) {
	err := Wrap(CodeConflict, &pgconn.PgError{Code: "23505"}, "duplicate settlement")
	fields := Dump(err).Fields()

	if fields["error_code"] != CodeConflict {
		t.Fatalf("expected conflict code, got %v", fields["error_code"])
	}
	if fields["pg_code"] != "23505" {
		t.Fatalf("expected pg_code, got %v", fields["pg_code"])
	}
	if _, ok := fields["pg_table"]; ok {
		t.Fatal("expected empty pg_table to be omitted")
	}
	if chain, _ := fields["error_chain"].([]string); len(chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", fields["error_chain"])
	}
}
