package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/records_backend/attachments"
	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/lifecycle"
	"github.com/mmdatafocus/records_backend/middlewares"
	"github.com/mmdatafocus/records_backend/normalize"
	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/reports"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
	"github.com/sirupsen/logrus"
)

const maxRequestBytes = 50 << 20

// controllerLookup resolves the controller of one registered entity at request time.
type controllerLookup func(kind string) (*lifecycle.Controller, bool)

// registerEntityRoutes mounts the generic record routes of kind under group.
func registerEntityRoutes(group *gin.RouterGroup, kind string, lookup controllerLookup) {
	h := &recordHandler{kind: kind, lookup: lookup}
	g := group.Group("/" + kind)
	g.GET("", h.list)
	g.POST("", h.insert)
	g.GET("/new", h.createForm)
	g.GET("/export", h.export)
	g.GET("/:id", h.show)
	g.GET("/:id/edit", h.editForm)
	g.PUT("/:id", h.update)
	g.POST("/:id", h.update)
	g.DELETE("/:id", h.remove)
	g.POST("/:id/restore", h.restore)
	g.DELETE("/:id/permanent", h.permanentDelete)
}

type recordHandler struct {
	kind   string
	lookup controllerLookup
}

func (h *recordHandler) controller(c *gin.Context) (*lifecycle.Controller, bool) {
	ctrl, ok := h.lookup(h.kind)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return nil, false
	}
	return ctrl, true
}

func (h *recordHandler) list(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	res, err := ctrl.List(c.Request.Context(), query.ParamsFromValues(c.Request.URL.Query()))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records":    res.Records,
		"fields":     res.Fields,
		"pagination": res.Pagination,
		"deleted":    res.Deleted,
		"warnings":   res.Warnings.Messages(),
	})
}

func (h *recordHandler) createForm(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	form, err := ctrl.CreateForm(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

func (h *recordHandler) editForm(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	form, err := ctrl.EditForm(c.Request.Context(), c.Param("id"), updateOptions(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

func (h *recordHandler) show(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rec, err := ctrl.Get(ctx, c.Param("id"), updateOptions(c).IncludeDeleted)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record":     rec,
		"references": middlewares.ReferenceLabels(ctx, ctrl.Entity(), rec),
		"files":      fileURLs(ctrl.Entity(), rec),
	})
}

// fileURLs maps every file field of rec to the URLs its keys are served from.
func fileURLs(e *schema.Entity, rec *store.Record) map[string][]string {
	out := map[string][]string{}
	for _, f := range e.FileFields() {
		var keys []string
		switch v := rec.Values[f.Name].(type) {
		case string:
			if v != "" {
				keys = []string{v}
			}
		case []string:
			keys = v
		}
		if len(keys) == 0 {
			continue
		}
		urls := make([]string, len(keys))
		for i, k := range keys {
			urls[i] = utils.BuildObjectAccessURL(k)
		}
		out[f.Name] = urls
	}
	return out
}

func (h *recordHandler) insert(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	payload, files, err := readPayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := ctrl.Insert(c.Request.Context(), payload, files)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": res.Record, "warnings": res.Warnings.Messages()})
}

func (h *recordHandler) update(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	payload, files, err := readPayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := ctrl.Update(c.Request.Context(), c.Param("id"), payload, files, updateOptions(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": res.Record, "warnings": res.Warnings.Messages()})
}

func (h *recordHandler) remove(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	res, err := ctrl.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": res.ID, "purged": res.Purged, "warnings": res.Warnings.Messages()})
}

func (h *recordHandler) restore(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	res, err := ctrl.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": res.Record, "warnings": res.Warnings.Messages()})
}

func (h *recordHandler) permanentDelete(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	res, err := ctrl.PermanentDelete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": res.ID, "purged": res.Purged, "warnings": res.Warnings.Messages()})
}

func (h *recordHandler) export(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := ctrl.Export(c.Request.Context(), query.ParamsFromValues(c.Request.URL.Query()), &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, ctrl.Entity().Table))
	c.Data(http.StatusOK, reports.ContentTypeXLSX, buf.Bytes())
}

func updateOptions(c *gin.Context) lifecycle.UpdateOptions {
	v := strings.ToLower(c.Query("include_deleted"))
	return lifecycle.UpdateOptions{IncludeDeleted: v == "true" || v == "1"}
}

// readPayload decodes a JSON, urlencoded or multipart body. Multipart file
// parts become uploads keyed by field name, with any [] or [n] suffix dropped.
func readPayload(c *gin.Context) (map[string]any, map[string][]attachments.Upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)

	switch c.ContentType() {
	case gin.MIMEJSON:
		payload := map[string]any{}
		dec := json.NewDecoder(c.Request.Body)
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return payload, nil, nil
	case gin.MIMEMultipartPOSTForm:
		form, err := c.MultipartForm()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		files, err := readUploads(form.File)
		if err != nil {
			return nil, nil, err
		}
		return normalize.FromValues(url.Values(form.Value)), files, nil
	default:
		if err := c.Request.ParseForm(); err != nil {
			return nil, nil, fmt.Errorf("invalid form body: %w", err)
		}
		return normalize.FromValues(c.Request.PostForm), nil, nil
	}
}

var fileKeySuffix = regexp.MustCompile(`\[\d*\]$`)

func readUploads(parts map[string][]*multipart.FileHeader) (map[string][]attachments.Upload, error) {
	files := map[string][]attachments.Upload{}
	for key, headers := range parts {
		field := fileKeySuffix.ReplaceAllString(key, "")
		for _, fh := range headers {
			data, err := readFileHeader(fh)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
			}
			files[field] = append(files[field], attachments.Upload{Filename: fh.Filename, Data: data})
		}
	}
	return files, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		verr *utils.ValidationError
		ierr *utils.InvalidIdentityError
		derr *utils.DuplicateKeyError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"fields": verr.Fields,
			"values": verr.Values,
		})
	case errors.As(err, &ierr):
		c.JSON(http.StatusBadRequest, gin.H{"error": ierr.Error()})
	case errors.As(err, &derr):
		c.JSON(http.StatusConflict, gin.H{"error": derr.Error(), "field": derr.Field})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, utils.ErrInvalidOperation):
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": err.Error()})
	default:
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		config.GetLogger().WithFields(logrus.Fields{
			"path":           c.FullPath(),
			"correlation_id": cid,
		}).Error(err.Error())
		msg := "internal server error"
		if !config.IsProduction() {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "correlation_id": cid})
	}
}
