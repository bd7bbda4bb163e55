package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "symptoms_name_key"}
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"any constraint", unique, "", true},
		{"matching constraint", unique, "symptoms_name_key", true},
		{"other constraint", unique, "red_flags_pkey", false},
		{"wrapped", fmt.Errorf("insert: %w", unique), "symptoms_name_key", true},
		{"fk violation", &pgconn.PgError{Code: "23503"}, "", false},
		{"plain error", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
