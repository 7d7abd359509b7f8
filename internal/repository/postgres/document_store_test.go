package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
)

func TestBuildWhere(t *testing.T) {
	tests := []struct {
		name      string
		p         domain.Principal
		filters   []repository.Filter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "Privileged",
			p:         domain.Principal{Privileged: true},
			wantWhere: "collection = $1",
			wantArgs:  []any{"messages"},
		},
		{
			name:      "UserWithFilters",
			p:         domain.Principal{UserID: "u1"},
			filters:   []repository.Filter{repository.Equal("receiver_id", "u1"), repository.In("read", false)},
			wantWhere: "collection = $1 AND (data @> $2::jsonb) AND (data @> $3::jsonb) AND permissions && $4::text[]",
			wantArgs: []any{
				"messages",
				`{"receiver_id":"u1"}`,
				`{"read":false}`,
				[]string{`read("any")`, `read("user:u1")`},
			},
		},
		{
			name:      "InFilter",
			p:         domain.Principal{Privileged: true},
			filters:   []repository.Filter{repository.In("status", "pending", "accepted")},
			wantWhere: "collection = $1 AND (data @> $2::jsonb OR data @> $3::jsonb)",
			wantArgs:  []any{"messages", `{"status":"pending"}`, `{"status":"accepted"}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := buildWhere(tt.p, "messages", tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, _, err := buildWhere(domain.Principal{Privileged: true}, "messages", []repository.Filter{{Field: "x"}}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("empty filter: want validation error, got %v", err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.Kind
	}{
		{name: "NoRows", err: pgx.ErrNoRows, want: domain.KindNotFound},
		{name: "Unique", err: &pgconn.PgError{Code: "23505"}, want: domain.KindConflict},
		{name: "Privilege", err: &pgconn.PgError{Code: "42501"}, want: domain.KindAuthorization},
		{name: "Check", err: &pgconn.PgError{Code: "23514"}, want: domain.KindValidation},
		{name: "ConnectionLost", err: &pgconn.PgError{Code: "08006"}, want: domain.KindTransient},
		{name: "Deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: domain.KindTransient},
		{name: "DomainPassthrough", err: domain.ErrDocumentNotFound, want: domain.KindNotFound},
		{name: "Other", err: errors.New("boom"), want: domain.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.KindOf(mapError("op", tt.err)); got != tt.want {
				t.Errorf("mapError(%v) kind = %s, want %s", tt.err, got, tt.want)
			}
		})
	}

	if mapError("op", nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}
