package utils

import (
	"github.com/mmdatafocus/records_backend/config"
)

/* Redis */

func identityCacheKey(username string) string {
	return "Identity:" + username
}

// GetIdentity returns the cached identity, or ok=false when missing.
func GetIdentity[T any](username string) (*T, bool, error) {
	var v T
	exists, err := config.GetRedisObject(identityCacheKey(username), &v)
	if err != nil || !exists {
		return nil, false, err
	}
	return &v, true, nil
}
