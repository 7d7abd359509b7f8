package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
)

// Store is an in-memory document store used in development and tests. It
// enforces the same ACL rules as the Postgres store.
type Store struct {
	// Now is the clock used for timestamps.
	Now func() time.Time

	mu      sync.RWMutex
	seq     int64
	data    map[string]map[string]*entry
	indexes map[string][]uniqueIndex
}

type entry struct {
	doc repository.Document
	seq int64
}

type uniqueIndex struct {
	fields []string
	where  []repository.Filter
}

func NewStore() *Store {
	return &Store{
		Now:     time.Now,
		data:    map[string]map[string]*entry{},
		indexes: map[string][]uniqueIndex{},
	}
}

// AddUniqueIndex rejects a write when another document in collection that
// matches where has the same values for fields.
func (s *Store) AddUniqueIndex(collection string, fields []string, where ...repository.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[collection] = append(s.indexes[collection], uniqueIndex{fields: fields, where: where})
}

func (s *Store) List(ctx context.Context, collection string, q repository.Query) (*repository.DocumentList, error) {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []*entry
	for _, e := range s.data[collection] {
		if !p.Allows(e.doc.Permissions, domain.ActionRead) {
			continue
		}
		ok, err := matches(e.doc.Data, q.Filters)
		if err != nil {
			s.mu.RUnlock()
			return nil, domain.Wrap(domain.KindValidation, "list "+collection, err)
		}
		if ok {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.doc.CreatedAt.Equal(b.doc.CreatedAt) {
			if q.Order == repository.OrderCreatedAsc {
				return a.doc.CreatedAt.Before(b.doc.CreatedAt)
			}
			return a.doc.CreatedAt.After(b.doc.CreatedAt)
		}
		if q.Order == repository.OrderCreatedAsc {
			return a.seq < b.seq
		}
		return a.seq > b.seq
	})

	total := len(matched)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}

	list := &repository.DocumentList{Documents: make([]repository.Document, 0, end-start), Total: total}
	for _, e := range matched[start:end] {
		list.Documents = append(list.Documents, copyDoc(e.doc))
	}
	return list, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*repository.Document, error) {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.data[collection][id]
	if e == nil || !p.Allows(e.doc.Permissions, domain.ActionRead) {
		return nil, domain.ErrDocumentNotFound
	}
	doc := copyDoc(e.doc)
	return &doc, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, data any, perms []domain.Permission) (*repository.Document, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[collection][id]; ok {
		return nil, domain.Conflictf("document %s/%s already exists", collection, id)
	}
	if err := s.checkUnique(collection, id, raw); err != nil {
		return nil, err
	}

	now := s.Now()
	s.seq++
	e := &entry{
		seq: s.seq,
		doc: repository.Document{
			ID:          id,
			Collection:  collection,
			Data:        raw,
			Permissions: append([]domain.Permission(nil), perms...),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	if s.data[collection] == nil {
		s.data[collection] = map[string]*entry{}
	}
	s.data[collection][id] = e

	doc := copyDoc(e.doc)
	return &doc, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch any, perms []domain.Permission) (*repository.Document, error) {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return nil, err
	}
	if perms != nil {
		if err := p.CanGrant(perms); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.data[collection][id]
	if e == nil || !p.Allows(e.doc.Permissions, domain.ActionRead) {
		return nil, domain.ErrDocumentNotFound
	}
	if !p.Allows(e.doc.Permissions, domain.ActionUpdate) {
		return nil, domain.Authorizationf("missing update permission on %s/%s", collection, id)
	}

	raw, err := repository.Patch(e.doc.Data, patch)
	if err != nil {
		return nil, fmt.Errorf("patching document: %w", err)
	}
	if err := s.checkUnique(collection, id, raw); err != nil {
		return nil, err
	}

	e.doc.Data = raw
	e.doc.UpdatedAt = s.Now()
	if perms != nil {
		e.doc.Permissions = append([]domain.Permission(nil), perms...)
	}

	doc := copyDoc(e.doc)
	return &doc, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	p, err := repository.Authorize(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.data[collection][id]
	if e == nil || !p.Allows(e.doc.Permissions, domain.ActionRead) {
		return domain.ErrDocumentNotFound
	}
	if !p.Allows(e.doc.Permissions, domain.ActionDelete) {
		return domain.Authorizationf("missing delete permission on %s/%s", collection, id)
	}
	delete(s.data[collection], id)
	return nil
}

// checkUnique must be called with s.mu held.
func (s *Store) checkUnique(collection, id string, raw json.RawMessage) error {
	for _, idx := range s.indexes[collection] {
		ok, err := matches(raw, idx.where)
		if err != nil || !ok {
			continue
		}
		key, err := fieldValues(raw, idx.fields)
		if err != nil {
			return err
		}
		for otherID, other := range s.data[collection] {
			if otherID == id {
				continue
			}
			if ok, _ := matches(other.doc.Data, idx.where); !ok {
				continue
			}
			otherKey, err := fieldValues(other.doc.Data, idx.fields)
			if err != nil {
				continue
			}
			if reflect.DeepEqual(key, otherKey) {
				return domain.Conflictf("unique constraint on %s %v violated", collection, idx.fields)
			}
		}
	}
	return nil
}

func fieldValues(raw json.RawMessage, fields []string) ([]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = m[f]
	}
	return out, nil
}

func matches(raw json.RawMessage, filters []repository.Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, err
	}
	for _, f := range filters {
		got, ok := m[f.Field]
		if !ok {
			return false, nil
		}
		found := false
		for _, v := range f.Values {
			want, err := normalize(v)
			if err != nil {
				return false, err
			}
			if reflect.DeepEqual(got, want) {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// normalize converts v to the shape json.Unmarshal produces for it.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(b, &out)
	return out, err
}

func copyDoc(d repository.Document) repository.Document {
	d.Data = append(json.RawMessage(nil), d.Data...)
	d.Permissions = append([]domain.Permission(nil), d.Permissions...)
	return d
}
