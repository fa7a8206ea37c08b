package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/utils"
)

// MemoryStore keeps records in process. It honours the same contract as the
// gorm store, unique fields included, and backs tests and local demos.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: map[string]map[string]*Record{}}
}

func (s *MemoryStore) rows(e *schema.Entity) map[string]*Record {
	t, ok := s.tables[e.Table]
	if !ok {
		t = map[string]*Record{}
		s.tables[e.Table] = t
	}
	return t
}

func (s *MemoryStore) Insert(_ context.Context, e *schema.Entity, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows(e)
	if _, ok := rows[r.ID]; ok {
		return &utils.DuplicateKeyError{Field: schema.ColumnID, Value: r.ID}
	}
	if err := checkUnique(e, rows, r); err != nil {
		return err
	}
	rows[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, e *schema.Entity, id string, includeDeleted bool) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows(e)[id]
	if !ok || (e.SoftDelete && !includeDeleted && !r.Active()) {
		return nil, &utils.NotFoundError{Entity: e.Kind, ID: id}
	}
	return r.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, e *schema.Entity, q query.Query) ([]*Record, int64, error) {
	s.mu.RLock()
	var matched []*Record
	for _, r := range s.rows(e) {
		if query.Match(q.Where, r.Columns(e)) {
			matched = append(matched, r.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a := matched[i].Columns(e)
		b := matched[j].Columns(e)
		c := compare(a[q.Sort.Field], b[q.Sort.Field])
		if c == 0 {
			c = strings.Compare(matched[i].ID, matched[j].ID)
		}
		if q.Sort.Desc {
			return c > 0
		}
		return c < 0
	})

	total := int64(len(matched))
	start := q.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PageSize
	if q.PageSize <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) FindByIDs(_ context.Context, e *schema.Entity, ids []string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows(e)
	var out []*Record
	for _, id := range utils.UniqueSlice(ids) {
		if r, ok := rows[id]; ok && (!e.SoftDelete || r.Active()) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, e *schema.Entity, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows(e)
	cur, ok := rows[r.ID]
	if !ok {
		return &utils.NotFoundError{Entity: e.Kind, ID: r.ID}
	}
	if err := checkUnique(e, rows, r); err != nil {
		return err
	}
	next := r.Clone()
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	next.DeletedAt = cur.DeletedAt
	rows[r.ID] = next
	return nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, e *schema.Entity, id string, by string, at time.Time) error {
	return s.setDeleted(e, id, by, at, &at)
}

func (s *MemoryStore) Restore(_ context.Context, e *schema.Entity, id string, by string, at time.Time) error {
	return s.setDeleted(e, id, by, at, nil)
}

func (s *MemoryStore) setDeleted(e *schema.Entity, id, by string, at time.Time, deletedAt *time.Time) error {
	if !e.SoftDelete {
		return utils.ErrInvalidOperation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows(e)[id]
	// deleting needs an active record, restoring a soft-deleted one
	if !ok || r.Active() == (deletedAt == nil) {
		return &utils.NotFoundError{Entity: e.Kind, ID: id}
	}
	r.DeletedAt = deletedAt
	r.UpdatedAt = at
	if by != "" && e.Declares(schema.ColumnUpdatedBy) {
		r.UpdatedBy = by
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, e *schema.Entity, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows(e)
	if _, ok := rows[id]; !ok {
		return &utils.NotFoundError{Entity: e.Kind, ID: id}
	}
	delete(rows, id)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, e *schema.Entity, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows(e)[id]
	return ok, nil
}

func checkUnique(e *schema.Entity, rows map[string]*Record, r *Record) error {
	for _, f := range e.Fields {
		if !f.Unique || f.Type.IsArray() {
			continue
		}
		v, ok := r.Values[f.Name]
		if !ok || v == nil || v == "" {
			continue
		}
		for id, other := range rows {
			if id == r.ID {
				continue
			}
			if fmt.Sprint(other.Values[f.Name]) == fmt.Sprint(v) {
				return &utils.DuplicateKeyError{Field: f.Name, Value: v}
			}
		}
	}
	return nil
}

// compare orders nil first, then numbers, times, booleans and strings.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
