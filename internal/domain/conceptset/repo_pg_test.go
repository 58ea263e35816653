package conceptset

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGTableMissing(t *testing.T) {
	undefined := fmt.Errorf("query: %w", &pgconn.PgError{Code: pgUndefinedTable, Message: `relation "n3c.concept_ancestor" does not exist`})
	if err := pgTableMissing(undefined); !errors.Is(err, errTableMissing) {
		t.Errorf("expected undefined_table to be marked missing, got %v", err)
	}

	undefinedColumn := &pgconn.PgError{Code: "42703", Message: `column "min_levels_of_separation" does not exist`}
	if err := pgTableMissing(undefinedColumn); errors.Is(err, errTableMissing) {
		t.Error("an undefined column must not be treated as a missing table")
	}
	if err := pgTableMissing(nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
