package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, req *http.Request, handlers ...gin.HandlerFunc) (*httptest.ResponseRecorder, context.Context) {
	t.Helper()
	var seen context.Context
	r := gin.New()
	r.Use(handlers...)
	r.GET("/", func(c *gin.Context) {
		seen = c.Request.Context()
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestCorrelationMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	w, ctx := serve(t, req, CorrelationMiddleware())
	if got, _ := utils.GetCorrelationIdFromContext(ctx); got != "abc-123" {
		t.Fatalf("correlation id = %q", got)
	}
	if w.Header().Get(CorrelationHeader) != "abc-123" {
		t.Fatalf("header not echoed")
	}

	_, ctx = serve(t, httptest.NewRequest(http.MethodGet, "/", nil), CorrelationMiddleware())
	if got, _ := utils.GetCorrelationIdFromContext(ctx); got == "" {
		t.Fatalf("no correlation id generated")
	}
}

func TestAuthMiddleware(t *testing.T) {
	token, err := utils.JwtGenerate(utils.JwtCustomClaim{UserID: "u-1", Username: "aye", TenantID: "t-1"})
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusNoContent},
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"not bearer", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w, ctx := serve(t, req, AuthMiddleware())
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if tc.name != "valid" {
				return
			}
			if id, _ := utils.GetUserIdFromContext(ctx); id != "u-1" {
				t.Fatalf("user id = %q", id)
			}
			if tenant, _ := utils.GetTenantIdFromContext(ctx); tenant != "t-1" {
				t.Fatalf("tenant = %q", tenant)
			}
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	w, _ := serve(t, httptest.NewRequest(http.MethodGet, "/", nil), RequireIdentity())
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAdminWithoutTenantSkipsScope(t *testing.T) {
	ctx := withIdentity(context.Background(), Identity{UserID: "root", IsAdmin: true})
	if skip, _ := utils.GetSkipTenantScopeFromContext(ctx); !skip {
		t.Fatalf("admin without tenant should skip tenant scope")
	}
	ctx = withIdentity(context.Background(), Identity{UserID: "u", TenantID: "t", IsAdmin: true})
	if skip, _ := utils.GetSkipTenantScopeFromContext(ctx); skip {
		t.Fatalf("tenant-bound admin must stay scoped")
	}
}

func TestRequestOptionsBatchesPerRequest(t *testing.T) {
	var calls int32
	source := func(_ context.Context, ref string) ([]schema.Option, error) {
		atomic.AddInt32(&calls, 1)
		return []schema.Option{{Value: ref + "-1", Label: ref}}, nil
	}
	opts := RequestOptions(source)

	ctx := context.WithValue(context.Background(), loadersKey, NewLoaders(store.NewMemoryStore(), source))
	for i := 0; i < 3; i++ {
		got, err := opts(ctx, "brand")
		if err != nil || len(got) != 1 || got[0].Label != "brand" {
			t.Fatalf("options = %v %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("source called %d times within one request", calls)
	}

	if _, err := opts(context.Background(), "brand"); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fallback not used: %d calls", calls)
	}
}

func TestReferenceLabels(t *testing.T) {
	brand := schema.MustRegister(schema.Entity{
		Kind: "mw_brand",
		Fields: []schema.Field{
			{Name: "name", Type: schema.Text},
			{Name: "tenant_id", Type: schema.Text},
		},
	})
	item, err := schema.New(schema.Entity{
		Kind: "mw_item",
		Fields: []schema.Field{
			{Name: "brand_id", Type: schema.Reference, Ref: "mw_brand"},
			{Name: "alt_brand_ids", Type: schema.ReferenceArray, Ref: "mw_brand"},
		},
	})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}

	st := store.NewMemoryStore()
	now := time.Now()
	seed := []*store.Record{
		{ID: "11111111-1111-4111-8111-111111111111", TenantID: "t-1", Values: map[string]any{"name": "Acme"}, CreatedAt: now, UpdatedAt: now},
		{ID: "22222222-2222-4222-8222-222222222222", TenantID: "t-1", Values: map[string]any{"name": "Globex"}, CreatedAt: now, UpdatedAt: now},
		{ID: "33333333-3333-4333-8333-333333333333", TenantID: "t-2", Values: map[string]any{"name": "Hidden"}, CreatedAt: now, UpdatedAt: now},
	}
	for _, r := range seed {
		if err := st.Insert(context.Background(), brand, r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	ctx := utils.SetTenantIdInContext(context.Background(), "t-1")
	ctx = context.WithValue(ctx, loadersKey, NewLoaders(st, nil))
	rec := &store.Record{Values: map[string]any{
		"brand_id":      seed[0].ID,
		"alt_brand_ids": []string{seed[1].ID, seed[2].ID},
	}}

	labels := ReferenceLabels(ctx, item, rec)
	if labels["brand_id"][seed[0].ID] != "Acme" || labels["alt_brand_ids"][seed[1].ID] != "Globex" {
		t.Fatalf("labels = %v", labels)
	}
	if _, leaked := labels["alt_brand_ids"][seed[2].ID]; leaked {
		t.Fatalf("record of another tenant resolved: %v", labels)
	}
}
