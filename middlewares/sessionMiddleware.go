package middlewares

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/utils"
)

// Identity is what the login service caches per username under Identity:<username>.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	TenantID string `json:"tenant_id"`
	IsAdmin  bool   `json:"is_admin"`
}

// SessionMiddleware resolves the "token" header through Redis (Token:<token> holds the
// username) and puts the caller's identity on the request context.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, username)

		identity, found, err := utils.GetIdentity[Identity](username)
		if err != nil {
			config.LogError(config.GetLogger(), "middlewares", "SessionMiddleware", "GetIdentity", username, err)
		}
		if found {
			ctx = withIdentity(ctx, *identity)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// withIdentity stores the identity on ctx. Admins without a tenant see every tenant.
func withIdentity(ctx context.Context, id Identity) context.Context {
	if id.UserID != "" {
		ctx = utils.SetUserIdInContext(ctx, id.UserID)
	}
	if id.Username != "" {
		ctx = utils.SetUsernameInContext(ctx, id.Username)
	}
	if id.TenantID != "" {
		ctx = utils.SetTenantIdInContext(ctx, id.TenantID)
	}
	ctx = utils.SetIsAdminInContext(ctx, id.IsAdmin)
	if id.IsAdmin && id.TenantID == "" {
		ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	}
	return ctx
}
