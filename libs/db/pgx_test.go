package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uidx"})
	name, ok := UniqueViolation(err)
	if !ok || name != "appointments_active_slot_uidx" {
		t.Fatalf("expected unique violation on slot index, got %q %v", name, ok)
	}
	if _, ok := UniqueViolation(&pgconn.PgError{Code: "23P01"}); ok {
		t.Fatal("exclusion violation must not match")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("lookup: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
}
