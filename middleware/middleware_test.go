package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"user_id": ctx.GetString(ContextUserIDKey), "email": ctx.GetString(ContextEmailKey)})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		code   int
	}{
		{"", "", 40101},
		{"Basic abc", "", 40102},
		{"Bearer", "", 40102},
		{"Bearer   ", "", 40103},
		{"bearer abc.def", "abc.def", 0},
		{"Bearer  abc ", "abc", 0},
	}
	for _, tt := range tests {
		token, code, _ := bearerToken(tt.header)
		assert.Equal(t, tt.code, code, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestAuthRequired(t *testing.T) {
	cfg := config.Default()
	cfg.App.JWTSecret = "middleware-secret"
	cfg.App.JWTIssuer = "idp"
	config.Set(cfg)

	r := gin.New()
	r.GET("/me", AuthRequired(), whoami)

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	w := call("Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "40105")

	token, err := utils.GenerateToken("u-1", "u1@example.com", time.Hour)
	require.NoError(t, err)
	w = call("Bearer " + token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u-1"`)
	assert.Contains(t, w.Body.String(), `"email":"u1@example.com"`)

	expired, err := utils.GenerateToken("u-1", "", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+expired).Code)

	noSubject, err := utils.GenerateToken("", "x@example.com", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+noSubject).Code)
}

func TestRateLimiterScopesAndCallers(t *testing.T) {
	l := NewRateLimiter(2) // burst 1

	r := gin.New()
	r.GET("/a", func(ctx *gin.Context) { ctx.Set(ContextUserIDKey, ctx.Query("u")) }, l.Handler("a"), whoami)
	r.GET("/b", l.Handler("b"), whoami)

	get := func(path string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("/a?u=alice"))
	assert.Equal(t, http.StatusTooManyRequests, get("/a?u=alice"))
	assert.Equal(t, http.StatusOK, get("/a?u=bob"), "buckets are per user")
	assert.Equal(t, http.StatusOK, get("/b"), "buckets are per scope")
	assert.Equal(t, http.StatusTooManyRequests, get("/b"))
}
