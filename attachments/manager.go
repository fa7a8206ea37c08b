package attachments

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultMaxBytes int64 = 5 * 1024 * 1024

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file size exceeds limit")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrSingleFile      = errors.New("field accepts a single file")
)

// Upload is one submitted file for a file-typed field.
type Upload struct {
	Filename string
	Data     []byte
}

type Options struct {
	// Prefix is the first key segment, "uploads" when empty.
	Prefix string
	Now    func() time.Time
	// Thumbnails enables 200px JPEG previews for jpeg and png uploads.
	Thumbnails bool
	MaxBytes   int64
}

// Change is the outcome of binding uploads to one record.
type Change struct {
	// Values holds the new value of every file field that changed.
	Values map[string]any
	// Written are the keys stored by this call; discard them if the record is not persisted.
	Written []string
	// Obsolete are keys no longer referenced once the record is persisted.
	Obsolete []string
	Warnings []error
}

// Manager binds uploaded files to record identities under
// <prefix>/<kind>/<id>/<field>_<unix-millis>_<index><ext>.
type Manager struct {
	blob Blob
	opts Options
}

func New(blob Blob, opts Options) *Manager {
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	if opts.Prefix == "" {
		opts.Prefix = "uploads"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	return &Manager{blob: blob, opts: opts}
}

func (m *Manager) Blob() Blob {
	return m.blob
}

// Dir is the key prefix holding every attachment of one record.
func (m *Manager) Dir(kind, id string) string {
	return path.Join(m.opts.Prefix, kind, id) + "/"
}

// Attach stores the uploads of a record that is about to be created.
func (m *Manager) Attach(ctx context.Context, e *schema.Entity, id string, files map[string][]Upload) Change {
	ch := Change{Values: map[string]any{}}
	for _, f := range e.FileFields() {
		ups := files[f.Name]
		if len(ups) == 0 {
			continue
		}
		keys := m.store(ctx, &ch, e.Kind, id, f, ups, 0)
		if len(keys) == 0 {
			continue
		}
		if f.Type.IsArray() {
			ch.Values[f.Name] = keys
		} else {
			ch.Values[f.Name] = keys[0]
		}
	}
	return ch
}

// Reconcile applies removals and then uploads to the file fields of an
// existing record. Array fields keep their survivors and append new files;
// singular fields are cleared by a matching removal and replaced by a new file.
func (m *Manager) Reconcile(ctx context.Context, e *schema.Entity, rec *store.Record, removals map[string][]string, files map[string][]Upload) Change {
	ch := Change{Values: map[string]any{}}
	for _, f := range e.FileFields() {
		remove := removalSet(removals[f.Name])
		ups := files[f.Name]
		if len(remove) == 0 && len(ups) == 0 {
			continue
		}

		if f.Type.IsArray() {
			current := stringList(rec.Values[f.Name])
			survivors := make([]string, 0, len(current))
			for _, key := range current {
				if remove[objectKey(key)] {
					ch.Obsolete = append(ch.Obsolete, key)
					continue
				}
				survivors = append(survivors, key)
			}
			added := m.store(ctx, &ch, e.Kind, rec.ID, f, ups, len(current))
			if len(survivors) != len(current) || len(added) > 0 {
				ch.Values[f.Name] = append(survivors, added...)
			}
			continue
		}

		current, _ := rec.Values[f.Name].(string)
		cleared := current != "" && remove[objectKey(current)]
		if cleared {
			ch.Obsolete = append(ch.Obsolete, current)
			ch.Values[f.Name] = nil
		}
		if added := m.store(ctx, &ch, e.Kind, rec.ID, f, ups, 0); len(added) > 0 {
			if current != "" && !cleared {
				ch.Obsolete = append(ch.Obsolete, current)
			}
			ch.Values[f.Name] = added[0]
		}
	}
	return ch
}

// store writes ups one after another and returns the keys that succeeded.
// Failures become UploadError warnings on ch.
func (m *Manager) store(ctx context.Context, ch *Change, kind, id string, f schema.Field, ups []Upload, offset int) []string {
	logger := config.GetLogger()
	var keys []string
	for i, u := range ups {
		if !f.Type.IsArray() && i > 0 {
			m.warn(ch, f.Name, u.Filename, ErrSingleFile)
			continue
		}
		if err := m.check(u); err != nil {
			m.warn(ch, f.Name, u.Filename, err)
			continue
		}
		contentType := utils.DetectContentType(u.Filename, u.Data)
		if !utils.IsAllowedMimeType(contentType) {
			m.warn(ch, f.Name, u.Filename, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType))
			continue
		}

		key := m.Dir(kind, id) + fmt.Sprintf("%s_%d_%d%s", f.Name, m.opts.Now().UnixMilli(), offset+i, strings.ToLower(path.Ext(u.Filename)))
		if err := m.blob.Put(ctx, key, u.Data, contentType); err != nil {
			m.warn(ch, f.Name, u.Filename, err)
			continue
		}
		ch.Written = append(ch.Written, key)
		keys = append(keys, key)

		if m.opts.Thumbnails && imageMimeTypes[contentType] {
			if err := m.putThumbnail(ctx, key, u.Data); err != nil {
				config.LogError(logger, "attachments", "store", "thumbnail", key, err)
			}
		}
		logger.WithFields(logrus.Fields{
			"object_key": key,
			"mime_type":  contentType,
			"size":       len(u.Data),
		}).Info("[upload.stored]")
	}
	return keys
}

func (m *Manager) check(u Upload) error {
	switch {
	case len(u.Data) == 0:
		return ErrEmptyFile
	case int64(len(u.Data)) > m.opts.MaxBytes:
		return ErrFileTooLarge
	}
	return nil
}

func (m *Manager) putThumbnail(ctx context.Context, key string, data []byte) error {
	thumb, err := generateThumbnail(data)
	if err != nil {
		return err
	}
	return m.blob.Put(ctx, ThumbnailKey(key), thumb, "image/jpeg")
}

func (m *Manager) warn(ch *Change, field, file string, err error) {
	w := &utils.UploadError{Field: field, File: file, Err: err}
	config.LogWarning(config.GetLogger(), "attachments", "store", field, file, w.Error())
	ch.Warnings = append(ch.Warnings, w)
}

// Discard deletes keys and their thumbnails. Failures are logged only.
func (m *Manager) Discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		key = objectKey(key)
		if key == "" {
			continue
		}
		for _, k := range []string{key, ThumbnailKey(key)} {
			if err := m.blob.Delete(ctx, k); err != nil {
				config.LogError(config.GetLogger(), "attachments", "Discard", "delete", k, err)
			}
		}
	}
}

// Purge deletes every object stored for the record.
func (m *Manager) Purge(ctx context.Context, kind, id string) error {
	objects, err := m.blob.List(ctx, m.Dir(kind, id))
	if err != nil {
		return err
	}
	var errs []error
	for _, o := range objects {
		if err := m.blob.Delete(ctx, o.Key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep purges attachment directories of kind whose record no longer exists.
// Directories touched within olderThan are skipped so an insert still in
// flight keeps its files. It returns the purged record ids.
func (m *Manager) Sweep(ctx context.Context, kind string, olderThan time.Duration, exists func(ctx context.Context, id string) (bool, error)) ([]string, error) {
	root := path.Join(m.opts.Prefix, kind) + "/"
	objects, err := m.blob.List(ctx, root)
	if err != nil {
		return nil, err
	}

	newest := map[string]time.Time{}
	var ids []string
	for _, o := range objects {
		rest := strings.TrimPrefix(o.Key, root)
		id, _, ok := strings.Cut(rest, "/")
		if !ok || id == "" {
			continue
		}
		t, seen := newest[id]
		if !seen {
			ids = append(ids, id)
		}
		if !seen || o.Updated.After(t) {
			newest[id] = o.Updated
		}
	}

	cutoff := m.opts.Now().Add(-olderThan)
	var purged []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if newest[id].After(cutoff) {
			continue
		}
		ok, err := exists(ctx, id)
		if err != nil {
			return purged, err
		}
		if ok {
			continue
		}
		if err := m.Purge(ctx, kind, id); err != nil {
			return purged, err
		}
		purged = append(purged, id)
	}
	return purged, nil
}

func removalSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		if key := objectKey(v); key != "" {
			out[key] = true
		}
	}
	return out
}

// objectKey accepts a stored key or any access URL built for it.
func objectKey(v string) string {
	v = strings.TrimSpace(v)
	if key := utils.ExtractObjectKeyFromURL(v); key != "" {
		return key
	}
	if strings.Contains(v, "..") {
		return ""
	}
	return v
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if x != "" {
			return []string{x}
		}
	}
	return nil
}
