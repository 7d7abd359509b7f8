package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vedran77/rentals/internal/domain"
)

// Document is one stored record. Data holds the record's JSON encoding.
type Document struct {
	ID          string              `json:"id"`
	Collection  string              `json:"collection"`
	Data        json.RawMessage     `json:"data"`
	Permissions []domain.Permission `json:"-"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Payload is the document data with its id and timestamps merged in.
func (d *Document) Payload() (json.RawMessage, error) {
	return Patch(d.Data, map[string]any{
		"id":         d.ID,
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	})
}

// Decode unmarshals the document payload into v.
func (d *Document) Decode(v any) error {
	raw, err := d.Payload()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Filter matches documents whose data field equals any of Values.
type Filter struct {
	Field  string
	Values []any
}

func Equal(field string, value any) Filter {
	return Filter{Field: field, Values: []any{value}}
}

func In(field string, values ...any) Filter {
	return Filter{Field: field, Values: values}
}

type Order int

const (
	OrderCreatedDesc Order = iota
	OrderCreatedAsc
)

type Query struct {
	Filters []Filter
	Order   Order
	Limit   int
	Offset  int
}

type DocumentList struct {
	Documents []Document
	// Total counts matching documents before Limit and Offset apply.
	Total int
}

// DocumentStore is a collection-scoped JSON document store with per-document
// ACLs. Every call runs as the principal on ctx.
type DocumentStore interface {
	List(ctx context.Context, collection string, q Query) (*DocumentList, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Create stores data under id, or a generated id when id is empty.
	Create(ctx context.Context, collection, id string, data any, perms []domain.Permission) (*Document, error)
	// Update merges the top-level keys of patch into the document. A nil
	// perms leaves the grants unchanged.
	Update(ctx context.Context, collection, id string, patch any, perms []domain.Permission) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// WithUser runs ctx as an ordinary user.
func WithUser(ctx context.Context, userID string) context.Context {
	return WithPrincipal(ctx, domain.Principal{UserID: userID})
}

// Privileged runs ctx with ACL checks bypassed. Only server-side functions
// use it.
func Privileged(ctx context.Context) context.Context {
	return WithPrincipal(ctx, domain.Principal{Privileged: true})
}

func PrincipalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey).(domain.Principal)
	return p
}

// Authorize returns the principal on ctx, or ErrUnauthenticated when there is
// none.
func Authorize(ctx context.Context) (domain.Principal, error) {
	p := PrincipalFrom(ctx)
	if !p.Privileged && p.UserID == "" {
		return p, domain.ErrUnauthenticated
	}
	return p, nil
}

// Patch merges the top-level keys of patch into data.
func Patch(data json.RawMessage, patch any) (json.RawMessage, error) {
	current := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &current); err != nil {
			return nil, err
		}
	}

	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	changes := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &changes); err != nil {
		return nil, err
	}

	for k, v := range changes {
		current[k] = v
	}
	return json.Marshal(current)
}
