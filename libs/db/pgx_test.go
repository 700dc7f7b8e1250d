package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	overlap := fmt.Errorf("insert appointment: %w", &pgconn.PgError{Code: "23P01"})
	if !IsExclusionViolation(overlap) {
		t.Fatal("expected wrapped 23P01 to be an exclusion violation")
	}
	if IsUniqueViolation(overlap) {
		t.Fatal("23P01 is not a unique violation")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected 23505 to be a unique violation")
	}
	if !IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to be not found")
	}
	if !IsInvalidText(fmt.Errorf("get: %w", &pgconn.PgError{Code: "22P02"})) {
		t.Fatal("expected 22P02 to be invalid text")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("plain error is not not-found")
	}
}

var (
	_ Querier = (*Pool)(nil)
	_ Querier = pgx.Tx(nil)
)
