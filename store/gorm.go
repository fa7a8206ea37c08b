package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps each entity in its own table, read and written through maps.
// Array fields live in JSON columns.
type GormStore struct {
	db         *gorm.DB
	registered sync.Map
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) table(ctx context.Context, e *schema.Entity) *gorm.DB {
	if e.Declares(schema.ColumnTenantID) {
		if _, loaded := s.registered.LoadOrStore(e.Table, true); !loaded {
			config.RegisterTenantTable(e.Table, schema.ColumnTenantID)
		}
	}
	return s.db.WithContext(ctx).Table(e.Table)
}

func idEq(id string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: schema.ColumnID}, Value: id}
}

var (
	deletedIsNull  = clause.Eq{Column: clause.Column{Name: schema.ColumnDeletedAt}, Value: nil}
	deletedNotNull = clause.Neq{Column: clause.Column{Name: schema.ColumnDeletedAt}, Value: nil}
)

func (s *GormStore) Insert(ctx context.Context, e *schema.Entity, r *Record) error {
	row, err := encodeRow(e, r.Columns(e))
	if err != nil {
		return err
	}
	if err := s.table(ctx, e).Create(row).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, e *schema.Entity, id string, includeDeleted bool) (*Record, error) {
	tx := s.table(ctx, e).Where(idEq(id))
	if e.SoftDelete && !includeDeleted {
		tx = tx.Where(deletedIsNull)
	}
	var rows []map[string]any
	if err := tx.Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &utils.NotFoundError{Entity: e.Kind, ID: id}
	}
	return decodeRow(e, rows[0])
}

func (s *GormStore) List(ctx context.Context, e *schema.Entity, q query.Query) ([]*Record, int64, error) {
	where := query.Compile(q.Where)
	filtered := func() *gorm.DB {
		tx := s.table(ctx, e)
		if where != nil {
			tx = tx.Where(where)
		}
		return tx
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []map[string]any
	err := filtered().
		Clauses(query.OrderBy(q.Sort)).
		Limit(q.PageSize).
		Offset(q.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	records, err := decodeRows(e, rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *GormStore) FindByIDs(ctx context.Context, e *schema.Entity, ids []string) ([]*Record, error) {
	ids = utils.UniqueSlice(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	tx := s.table(ctx, e).Where(clause.IN{Column: clause.Column{Name: schema.ColumnID}, Values: values})
	if e.SoftDelete {
		tx = tx.Where(deletedIsNull)
	}
	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return decodeRows(e, rows)
}

func (s *GormStore) Update(ctx context.Context, e *schema.Entity, r *Record) error {
	cols := r.Columns(e)
	// identity, creation stamps and lifecycle state are never rewritten here
	delete(cols, schema.ColumnID)
	delete(cols, schema.ColumnCreatedAt)
	delete(cols, schema.ColumnCreatedBy)
	delete(cols, schema.ColumnDeletedAt)
	row, err := encodeRow(e, cols)
	if err != nil {
		return err
	}
	tx := s.table(ctx, e).Where(idEq(r.ID)).Updates(row)
	if tx.Error != nil {
		return mapError(tx.Error)
	}
	return nil
}

func (s *GormStore) SoftDelete(ctx context.Context, e *schema.Entity, id string, by string, at time.Time) error {
	return s.setDeleted(ctx, e, id, by, at, &at, deletedIsNull)
}

func (s *GormStore) Restore(ctx context.Context, e *schema.Entity, id string, by string, at time.Time) error {
	return s.setDeleted(ctx, e, id, by, at, nil, deletedNotNull)
}

// setDeleted flips deleted_at only when the record is in the expected state, so
// a lost race reports NotFound instead of silently re-applying.
func (s *GormStore) setDeleted(ctx context.Context, e *schema.Entity, id, by string, at time.Time, deletedAt *time.Time, expect clause.Expression) error {
	if !e.SoftDelete {
		return utils.ErrInvalidOperation
	}
	row := map[string]any{
		schema.ColumnUpdatedAt: at,
	}
	if deletedAt != nil {
		row[schema.ColumnDeletedAt] = *deletedAt
	} else {
		row[schema.ColumnDeletedAt] = nil
	}
	if by != "" && e.Declares(schema.ColumnUpdatedBy) {
		row[schema.ColumnUpdatedBy] = by
	}
	tx := s.table(ctx, e).Where(idEq(id)).Where(expect).Updates(row)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return &utils.NotFoundError{Entity: e.Kind, ID: id}
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, e *schema.Entity, id string) error {
	tx := s.db.WithContext(ctx).Exec("DELETE FROM ? WHERE id = ?", clause.Table{Name: e.Table}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return &utils.NotFoundError{Entity: e.Kind, ID: id}
	}
	return nil
}

func (s *GormStore) Exists(ctx context.Context, e *schema.Entity, id string) (bool, error) {
	var count int64
	if err := s.table(ctx, e).Where(idEq(id)).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// encodeRow converts values to column types: arrays become JSON documents.
func encodeRow(e *schema.Entity, cols map[string]any) (map[string]any, error) {
	row := make(map[string]any, len(cols))
	for name, v := range cols {
		f, ok := e.Field(name)
		if !ok || !f.Type.IsArray() {
			row[name] = v
			continue
		}
		list := toStrings(v)
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		row[name] = datatypes.JSON(b)
	}
	return row, nil
}

var duplicateEntry = regexp.MustCompile(`Duplicate entry '(.*)' for key '(?:[^.']*\.)?([^']*)'`)

// mapError turns MySQL duplicate-key errors (1062) into DuplicateKeyError. Unique
// indexes are named uq_<table>__<field> by the migrator.
func mapError(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != 1062 {
		return err
	}
	dup := &utils.DuplicateKeyError{}
	if m := duplicateEntry.FindStringSubmatch(me.Message); m != nil {
		dup.Value = m[1]
		dup.Field = fieldFromIndex(m[2])
	}
	return dup
}

func fieldFromIndex(index string) string {
	if !strings.HasPrefix(index, "uq_") {
		return index
	}
	rest := strings.TrimPrefix(index, "uq_")
	if i := strings.Index(rest, "__"); i >= 0 {
		return rest[i+2:]
	}
	return rest
}
