package attachments

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
)

const recordID = "0b7f1c2e-5d1a-4c3e-9f00-3a1e2b4c5d6e"

func testEntity(t *testing.T) *schema.Entity {
	t.Helper()
	e, err := schema.New(schema.Entity{
		Kind: "product",
		Fields: []schema.Field{
			{Name: "name", Type: schema.Text},
			{Name: "images", Type: schema.TextArray},
			{Name: "manual", Type: schema.Text, UIHint: schema.UIFile},
		},
	})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return e
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for x := 0; x < 400; x++ {
		img.Set(x, x%300, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func newManager(t *testing.T, thumbnails bool) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	clock := time.UnixMilli(1700000000000)
	m := New(NewLocalBlob(root), Options{
		Now:        func() time.Time { return clock },
		Thumbnails: thumbnails,
	})
	return m, root
}

func TestAttachBuildsIdentityScopedKeys(t *testing.T) {
	m, root := newManager(t, true)
	e := testEntity(t)
	img := pngBytes(t)

	ch := m.Attach(context.Background(), e, recordID, map[string][]Upload{
		"images": {{Filename: "a.PNG", Data: img}, {Filename: "b.png", Data: img}},
		"manual": {{Filename: "guide.txt", Data: []byte("read me")}},
	})
	if len(ch.Warnings) != 0 {
		t.Fatalf("warnings: %v", ch.Warnings)
	}
	wantImages := []string{
		"uploads/product/" + recordID + "/images_1700000000000_0.png",
		"uploads/product/" + recordID + "/images_1700000000000_1.png",
	}
	if !reflect.DeepEqual(ch.Values["images"], wantImages) {
		t.Fatalf("images = %v", ch.Values["images"])
	}
	if ch.Values["manual"] != "uploads/product/"+recordID+"/manual_1700000000000_0.txt" {
		t.Fatalf("manual = %v", ch.Values["manual"])
	}
	if len(ch.Written) != 3 {
		t.Fatalf("written = %v", ch.Written)
	}
	for _, key := range wantImages {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(key))); err != nil {
			t.Fatalf("missing %s: %v", key, err)
		}
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(ThumbnailKey(key)))); err != nil {
			t.Fatalf("missing thumbnail for %s: %v", key, err)
		}
	}
}

func TestAttachFailuresAreWarnings(t *testing.T) {
	m, _ := newManager(t, false)
	e := testEntity(t)

	ch := m.Attach(context.Background(), e, recordID, map[string][]Upload{
		"images": {
			{Filename: "empty.png"},
			{Filename: "tool.exe", Data: []byte{0x4d, 0x5a, 0x90, 0x00, 0x03}},
			{Filename: "ok.png", Data: pngBytes(t)},
		},
		"manual": {{Filename: "a.txt", Data: []byte("a")}, {Filename: "b.txt", Data: []byte("b")}},
	})
	if len(ch.Warnings) != 3 {
		t.Fatalf("warnings = %v", ch.Warnings)
	}
	var ue *utils.UploadError
	if !errors.As(ch.Warnings[0], &ue) || !errors.Is(ue, ErrEmptyFile) {
		t.Fatalf("first warning = %v", ch.Warnings[0])
	}
	if !errors.Is(ch.Warnings[1], ErrUnsupportedType) {
		t.Fatalf("second warning = %v", ch.Warnings[1])
	}
	if !errors.Is(ch.Warnings[2], ErrSingleFile) {
		t.Fatalf("third warning = %v", ch.Warnings[2])
	}
	// the surviving file keeps its submitted position in the key
	want := []string{"uploads/product/" + recordID + "/images_1700000000000_2.png"}
	if !reflect.DeepEqual(ch.Values["images"], want) {
		t.Fatalf("images = %v", ch.Values["images"])
	}
}

func TestReconcileRemovesBeforeAppending(t *testing.T) {
	m, root := newManager(t, false)
	e := testEntity(t)
	ctx := context.Background()
	img := pngBytes(t)

	first := m.Attach(ctx, e, recordID, map[string][]Upload{
		"images": {{Filename: "p1.png", Data: img}, {Filename: "p2.png", Data: img}},
	})
	existing := first.Values["images"].([]string)
	p1, p2 := existing[0], existing[1]
	rec := &store.Record{ID: recordID, Values: map[string]any{"images": existing}}

	ch := m.Reconcile(ctx, e, rec,
		map[string][]string{"images": {"/files/" + p1}},
		map[string][]Upload{"images": {{Filename: "new.png", Data: img}}},
	)
	got := ch.Values["images"].([]string)
	if len(got) != 2 || got[0] != p2 || got[1] == p1 || got[1] == p2 {
		t.Fatalf("images = %v", got)
	}
	if !reflect.DeepEqual(ch.Obsolete, []string{p1}) {
		t.Fatalf("obsolete = %v", ch.Obsolete)
	}

	m.Discard(ctx, ch.Obsolete)
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p1))); !os.IsNotExist(err) {
		t.Fatalf("p1 not discarded: %v", err)
	}
}

func TestReconcileSingularField(t *testing.T) {
	m, _ := newManager(t, false)
	e := testEntity(t)
	ctx := context.Background()
	old := "uploads/product/" + recordID + "/manual_1_0.txt"
	rec := &store.Record{ID: recordID, Values: map[string]any{"manual": old}}

	replaced := m.Reconcile(ctx, e, rec, nil, map[string][]Upload{"manual": {{Filename: "v2.txt", Data: []byte("v2")}}})
	if replaced.Values["manual"] == old || replaced.Values["manual"] == nil {
		t.Fatalf("manual = %v", replaced.Values["manual"])
	}
	if !reflect.DeepEqual(replaced.Obsolete, []string{old}) {
		t.Fatalf("obsolete = %v", replaced.Obsolete)
	}

	cleared := m.Reconcile(ctx, e, rec, map[string][]string{"manual": {old}}, nil)
	if v, ok := cleared.Values["manual"]; !ok || v != nil {
		t.Fatalf("manual not cleared: %v", cleared.Values)
	}

	untouched := m.Reconcile(ctx, e, rec, map[string][]string{"manual": {"uploads/product/other/x.txt"}}, nil)
	if len(untouched.Values) != 0 || len(untouched.Obsolete) != 0 {
		t.Fatalf("unrelated removal changed the record: %+v", untouched)
	}
}

func TestPurgeAndSweep(t *testing.T) {
	m, root := newManager(t, true)
	e := testEntity(t)
	ctx := context.Background()
	img := pngBytes(t)
	orphan := "9a9a9a9a-0000-4000-8000-000000000001"

	m.Attach(ctx, e, recordID, map[string][]Upload{"images": {{Filename: "a.png", Data: img}}})
	m.Attach(ctx, e, orphan, map[string][]Upload{"images": {{Filename: "b.png", Data: img}}})

	// files are fresh relative to the clock, so a long grace period skips them
	purged, err := m.Sweep(ctx, "product", 1000*time.Hour, func(context.Context, string) (bool, error) { return false, nil })
	if err != nil || len(purged) != 0 {
		t.Fatalf("sweep within grace = %v %v", purged, err)
	}

	m.opts.Now = func() time.Time { return time.Now().Add(time.Hour) }
	exists := func(_ context.Context, id string) (bool, error) { return id == recordID, nil }
	purged, err = m.Sweep(ctx, "product", time.Minute, exists)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !reflect.DeepEqual(purged, []string{orphan}) {
		t.Fatalf("purged = %v", purged)
	}
	if _, err := os.Stat(filepath.Join(root, "uploads", "product", orphan)); !os.IsNotExist(err) {
		t.Fatalf("orphan dir still present: %v", err)
	}

	if err := m.Purge(ctx, "product", recordID); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	left, _ := m.Blob().List(ctx, m.Dir("product", recordID))
	if len(left) != 0 {
		t.Fatalf("objects left after purge: %v", left)
	}
}

func TestLocalBlobRejectsEscapingKeys(t *testing.T) {
	b := NewLocalBlob(t.TempDir())
	for _, key := range []string{"", "/etc/passwd", "uploads/../../x", `uploads\x`} {
		if err := b.Put(context.Background(), key, []byte("x"), "text/plain"); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Put(%q) = %v", key, err)
		}
	}
}
