package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imalive/server/config"
	"github.com/imalive/server/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextTokenKey stores the raw bearer token (logout revokes it).
	ContextTokenKey = "token"
	// ContextClaimsKey stores the parsed claims.
	ContextClaimsKey = "claims"
)

// AuthRequired ensures the request is authenticated via JWT. Browsers cannot set headers on
// websocket handshakes, so a ?token= query parameter is accepted as well.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, code, msg := bearerToken(ctx)
		if code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			ctx.Abort()
			return
		}

		if utils.IsTokenBlacklisted(tokenString) {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Set(ContextTokenKey, tokenString)
		ctx.Set(ContextClaimsKey, claims)
		ctx.Next()
	}
}

// AdminRequired must run after AuthRequired; it admits usernames listed in AdminUsernames.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		name := ctx.GetString(ContextUsernameKey)
		for _, admin := range config.Get().AdminUsernames {
			if strings.EqualFold(admin, name) {
				ctx.Next()
				return
			}
		}
		utils.Error(ctx, http.StatusForbidden, 40301, "admin only")
		ctx.Abort()
	}
}

func bearerToken(ctx *gin.Context) (string, int, string) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		if q := strings.TrimSpace(ctx.Query("token")); q != "" {
			return q, 0, ""
		}
		return "", 40101, "authorization header missing"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", 40102, "invalid authorization header format"
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", 40103, "empty bearer token"
	}
	return token, 0, ""
}
