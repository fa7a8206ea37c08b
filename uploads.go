package main

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/records_backend/attachments"
	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/utils"
	"github.com/sirupsen/logrus"
)

// fileHandler streams stored attachments under /files/<key>, the URLs
// utils.BuildObjectAccessURL hands out for the local provider.
func fileHandler(blob func() attachments.Blob) gin.HandlerFunc {
	return func(c *gin.Context) {
		objectKey := strings.TrimPrefix(c.Param("key"), "/")
		b := blob()
		if b == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}

		reader, err := b.Open(c.Request.Context(), objectKey)
		switch {
		case errors.Is(err, attachments.ErrInvalidKey):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
			return
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, storage.ErrObjectNotExist):
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		case err != nil:
			logUploadError(config.GetLogger(), err, utils.GetStorageProvider(), objectKey)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
			return
		}
		defer reader.Close()

		// attachments are capped by the manager, so reading whole is bounded
		data, err := io.ReadAll(reader)
		if err != nil {
			logUploadError(config.GetLogger(), err, utils.GetStorageProvider(), objectKey)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
			return
		}
		c.Header("Cache-Control", "private, max-age=3600")
		c.Data(http.StatusOK, utils.DetectContentType(objectKey, data), data)
	}
}

func logUploadError(logger *logrus.Logger, err error, provider string, objectKey string) {
	logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"provider":   provider,
		"object_key": objectKey,
	}).Error("[upload.error]")
}
