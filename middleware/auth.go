package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/dailyink/utils"
)

const (
	// ContextUserIDKey holds the token subject, the stable id assigned by the identity provider.
	ContextUserIDKey = "user_id"
	ContextEmailKey  = "email"
)

// AuthRequired accepts only requests carrying a bearer token signed by the identity provider.
// Users are never registered here; the first valid token for a subject creates its ledger lazily.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, code, msg := bearerToken(ctx.GetHeader("Authorization"))
		if code != 0 {
			utils.Abort(ctx, http.StatusUnauthorized, code, msg)
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			utils.Abort(ctx, http.StatusUnauthorized, 40105, "invalid token")
			return
		}

		ctx.Set(ContextUserIDKey, claims.Subject)
		ctx.Set(ContextEmailKey, claims.Email)
		ctx.Next()
	}
}

func bearerToken(header string) (string, int, string) {
	if header == "" {
		return "", 40101, "authorization header missing"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", 40102, "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", 40103, "empty bearer token"
	}
	return token, 0, ""
}
