package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
)

// DocumentStore keeps every collection in one JSONB table. ACLs are stored as
// permission strings and checked in SQL for reads.
type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

const documentColumns = `id, data, permissions, created_at, updated_at`

func (r *DocumentStore) List(ctx context.Context, collection string, q repository.Query) (*repository.DocumentList, error) {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	where, args, err := buildWhere(p, collection, q.Filters)
	if err != nil {
		return nil, err
	}

	list := &repository.DocumentList{Documents: []repository.Document{}}
	countQuery := `SELECT count(*) FROM documents WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&list.Total); err != nil {
		return nil, mapError("count "+collection, err)
	}

	order := "created_at DESC, seq DESC"
	if q.Order == repository.OrderCreatedAsc {
		order = "created_at ASC, seq ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s ORDER BY %s`, documentColumns, where, order)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list "+collection, err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows, collection)
		if err != nil {
			return nil, mapError("list "+collection, err)
		}
		list.Documents = append(list.Documents, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list "+collection, err)
	}
	return list, nil
}

func (r *DocumentStore) Get(ctx context.Context, collection, id string) (*repository.Document, error) {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	where, args, err := buildWhere(p, collection, nil)
	if err != nil {
		return nil, err
	}
	args = append(args, id)
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s AND id = $%d`, documentColumns, where, len(args))

	doc, err := scanDocument(r.pool.QueryRow(ctx, query, args...), collection)
	if err != nil {
		return nil, mapError("get "+collection, err)
	}
	return doc, nil
}

func (r *DocumentStore) Create(ctx context.Context, collection, id string, data any, perms []domain.Permission) (*repository.Document, error) {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.CanGrant(perms); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO documents (collection, id, data, permissions)
		VALUES ($1, $2, $3::jsonb, $4)
		RETURNING ` + documentColumns
	doc, err := scanDocument(r.pool.QueryRow(ctx, query, collection, id, string(raw), domain.PermissionStrings(perms)), collection)
	if err != nil {
		return nil, mapError("create "+collection, err)
	}
	return doc, nil
}

func (r *DocumentStore) Update(ctx context.Context, collection, id string, patch any, perms []domain.Permission) (*repository.Document, error) {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return nil, err
	}
	if perms != nil {
		if err := p.CanGrant(perms); err != nil {
			return nil, err
		}
	}

	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encoding patch: %w", err)
	}

	var doc *repository.Document
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.lockForWrite(ctx, tx, p, collection, id, domain.ActionUpdate); err != nil {
			return err
		}

		var permArg any
		if perms != nil {
			permArg = domain.PermissionStrings(perms)
		}
		query := `
			UPDATE documents
			SET data = data || $3::jsonb,
			    permissions = COALESCE($4::text[], permissions),
			    updated_at = now()
			WHERE collection = $1 AND id = $2
			RETURNING ` + documentColumns
		doc, err = scanDocument(tx.QueryRow(ctx, query, collection, id, string(raw), permArg), collection)
		return err
	})
	if err != nil {
		return nil, mapError("update "+collection, err)
	}
	return doc, nil
}

func (r *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.lockForWrite(ctx, tx, p, collection, id, domain.ActionDelete); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
		return err
	})
	return mapError("delete "+collection, err)
}

// lockForWrite locks the row and checks that p may perform action on it.
func (r *DocumentStore) lockForWrite(ctx context.Context, tx pgx.Tx, p domain.Principal, collection, id string, action domain.Action) error {
	var stored []string
	err := tx.QueryRow(ctx,
		`SELECT permissions FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&stored)
	if err != nil {
		return err
	}

	perms, err := domain.ParsePermissions(stored)
	if err != nil {
		return err
	}
	if !p.Allows(perms, domain.ActionRead) {
		return domain.ErrDocumentNotFound
	}
	if !p.Allows(perms, action) {
		return domain.Authorizationf("missing %s permission on %s/%s", action, collection, id)
	}
	return nil
}

// buildWhere returns the WHERE clause for collection, the read ACL of p and
// filters, with positional args starting at $1.
func buildWhere(p domain.Principal, collection string, filters []repository.Filter) (string, []any, error) {
	clauses := []string{"collection = $1"}
	args := []any{collection}

	for _, f := range filters {
		if len(f.Values) == 0 {
			return "", nil, domain.Validationf("filter on %q has no values", f.Field)
		}
		ors := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			b, err := json.Marshal(map[string]any{f.Field: v})
			if err != nil {
				return "", nil, domain.Validationf("filter on %q: %v", f.Field, err)
			}
			args = append(args, string(b))
			ors = append(ors, fmt.Sprintf("data @> $%d::jsonb", len(args)))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	if !p.Privileged {
		roles := p.Roles()
		grants := make([]domain.Permission, len(roles))
		for i, role := range roles {
			grants[i] = domain.Read(role)
		}
		args = append(args, domain.PermissionStrings(grants))
		clauses = append(clauses, fmt.Sprintf("permissions && $%d::text[]", len(args)))
	}

	return strings.Join(clauses, " AND "), args, nil
}

func scanDocument(row pgx.Row, collection string) (*repository.Document, error) {
	var (
		doc   repository.Document
		data  []byte
		perms []string
	)
	if err := row.Scan(&doc.ID, &data, &perms, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := domain.ParsePermissions(perms)
	if err != nil {
		return nil, err
	}
	doc.Collection = collection
	doc.Data = data
	doc.Permissions = parsed
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

// Postgres error codes the store maps onto domain kinds.
const (
	codeUniqueViolation       = "23505"
	codeInsufficientPrivilege = "42501"
	codeNotNullViolation      = "23502"
	codeCheckViolation        = "23514"
	codeInvalidText           = "22P02"
	codeSerializationFailure  = "40001"
	codeDeadlockDetected      = "40P01"
	codeAdminShutdown         = "57P01"
)

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.Error{Kind: domain.KindNotFound, Op: op, Msg: "document not found"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return domain.Wrap(domain.KindConflict, op, err)
		case pgErr.Code == codeInsufficientPrivilege:
			return domain.Wrap(domain.KindAuthorization, op, err)
		case pgErr.Code == codeNotNullViolation, pgErr.Code == codeCheckViolation, pgErr.Code == codeInvalidText:
			return domain.Wrap(domain.KindValidation, op, err)
		case pgErr.Code == codeSerializationFailure, pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeAdminShutdown, strings.HasPrefix(pgErr.Code, "08"):
			return domain.Wrap(domain.KindTransient, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return domain.Wrap(domain.KindTransient, op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return domain.Wrap(domain.KindTransient, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ repository.DocumentStore = (*DocumentStore)(nil)
