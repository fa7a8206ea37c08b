package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func init() {
	// Load env from .env
	godotenv.Load()
}

// Pagination defaults shared by every registered entity unless the entity overrides them.
func DefaultPageSize() int {
	return intFromEnv("DEFAULT_PAGE_SIZE", defaultPageSize)
}

func MaxPageSize() int {
	return intFromEnv("MAX_PAGE_SIZE", maxPageSize)
}

// UploadRoot is the local directory the "uploads/..." keys are resolved against.
func UploadRoot() string {
	if v := strings.TrimSpace(os.Getenv("UPLOAD_ROOT")); v != "" {
		return v
	}
	return "."
}

func UploadPrefix() string {
	if v := strings.Trim(strings.TrimSpace(os.Getenv("UPLOAD_PREFIX")), "/"); v != "" {
		return v
	}
	return "uploads"
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

func BoolFromEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
