package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/utils"
)

func testEntity(t *testing.T) *schema.Entity {
	t.Helper()
	e, err := schema.New(schema.Entity{
		Kind:       "product",
		SoftDelete: true,
		Fields: []schema.Field{
			{Name: "name", Type: schema.Text, Required: true},
			{Name: "slug", Type: schema.Text, Unique: true},
			{Name: "description", Type: schema.Text},
			{Name: "price", Type: schema.Number},
			{Name: "active", Type: schema.Boolean},
			{Name: "tag_id", Type: schema.TextArray, Enum: []string{"A", "B", "C"}},
			{Name: "images", Type: schema.TextArray},
			{Name: "created_by", Type: schema.Reference},
			{Name: "updated_by", Type: schema.Reference},
			{Name: "tenant_id", Type: schema.Text},
		},
	})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return e
}

func newRecord(id, name string, created time.Time) *Record {
	return &Record{
		ID:        id,
		Values:    map[string]any{"name": name, "description": "", "tag_id": []string{"A"}},
		TenantID:  "t-1",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	e := testEntity(t)
	s := NewMemoryStore()
	now := time.Now().UTC()

	if err := s.Insert(ctx, e, newRecord("r1", "Shoe", now)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.Get(ctx, e, "r1", false)
	if err != nil || got.Values["name"] != "Shoe" {
		t.Fatalf("Get: %v %+v", err, got)
	}

	// stored copy is isolated from the caller
	got.Values["tag_id"].([]string)[0] = "Z"
	again, _ := s.Get(ctx, e, "r1", false)
	if again.Values["tag_id"].([]string)[0] != "A" {
		t.Fatalf("store leaked its internal slice")
	}

	if err := s.Restore(ctx, e, "r1", "", now); !isNotFound(err) {
		t.Fatalf("Restore on active record: %v", err)
	}
	if err := s.SoftDelete(ctx, e, "r1", "u1", now); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if err := s.SoftDelete(ctx, e, "r1", "u1", now); !isNotFound(err) {
		t.Fatalf("second SoftDelete: %v", err)
	}
	if _, err := s.Get(ctx, e, "r1", false); !isNotFound(err) {
		t.Fatalf("soft-deleted record visible: %v", err)
	}
	deleted, err := s.Get(ctx, e, "r1", true)
	if err != nil || deleted.Active() || deleted.UpdatedBy != "u1" {
		t.Fatalf("Get includeDeleted: %v %+v", err, deleted)
	}
	if err := s.Restore(ctx, e, "r1", "u2", now); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := s.Delete(ctx, e, "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, e, "r1", true); !isNotFound(err) {
		t.Fatalf("purged record still found: %v", err)
	}
	if ok, _ := s.Exists(ctx, e, "r1"); ok {
		t.Fatalf("purged record still exists")
	}
}

func TestMemoryStoreUnique(t *testing.T) {
	ctx := context.Background()
	e := testEntity(t)
	s := NewMemoryStore()
	now := time.Now()

	a := newRecord("a", "A", now)
	a.Values["slug"] = "same"
	b := newRecord("b", "B", now)
	b.Values["slug"] = "same"
	if err := s.Insert(ctx, e, a); err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	var dup *utils.DuplicateKeyError
	if err := s.Insert(ctx, e, b); !errors.As(err, &dup) || dup.Field != "slug" {
		t.Fatalf("expected duplicate slug, got %v", err)
	}
	// updating a record to its own value is fine
	if err := s.Update(ctx, e, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestMemoryStoreListSearchSortPage(t *testing.T) {
	ctx := context.Background()
	e := testEntity(t)
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	names := []string{"Red shoe", "Blue shoe", "Sock", "Green Shoe", "Hat"}
	for i, n := range names {
		if err := s.Insert(ctx, e, newRecord(string(rune('a'+i)), n, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := s.SoftDelete(ctx, e, "d", "", base); err != nil { // Green Shoe
		t.Fatalf("SoftDelete: %v", err)
	}

	b := query.Builder{Searchable: []string{"name", "description"}, Sortable: []string{"name"}, SoftDelete: true, DefaultPageSize: 1, MaxPageSize: 10}
	q := b.Build(query.Params{Search: "shoe", PageSize: 1, Page: 2})
	page, total, err := s.List(ctx, e, q)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(page) != 1 {
		t.Fatalf("total=%d len=%d", total, len(page))
	}
	// created_at DESC: Blue shoe (b) then Red shoe (a)
	if page[0].ID != "a" {
		t.Fatalf("page 2 = %s", page[0].ID)
	}

	q = b.Build(query.Params{Sort: "name", PageSize: 10})
	all, _, _ := s.List(ctx, e, q)
	var got []string
	for _, r := range all {
		got = append(got, r.Values["name"].(string))
	}
	want := []string{"Blue shoe", "Hat", "Red shoe", "Sock"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted names = %v", got)
		}
	}

	deleted, total, _ := s.List(ctx, e, b.Build(query.Params{Deleted: true}))
	if total != 1 || deleted[0].ID != "d" {
		t.Fatalf("deleted view = %d %v", total, deleted)
	}
}

func TestRecordColumnsHonourDeclarations(t *testing.T) {
	e, err := schema.New(schema.Entity{Kind: "note", Fields: []schema.Field{{Name: "body", Type: schema.Text}}})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	r := &Record{ID: "n1", Values: map[string]any{"body": "x"}, CreatedBy: "u", TenantID: "t"}
	cols := r.Columns(e)
	for _, c := range []string{"created_by", "updated_by", "tenant_id", "deleted_at"} {
		if _, ok := cols[c]; ok {
			t.Fatalf("undeclared column %s stamped", c)
		}
	}
	if cols["body"] != "x" || cols["id"] != "n1" {
		t.Fatalf("columns = %v", cols)
	}
}

func isNotFound(err error) bool {
	var nf *utils.NotFoundError
	return errors.As(err, &nf)
}
