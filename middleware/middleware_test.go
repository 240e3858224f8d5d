package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imalive/server/config"
	"github.com/imalive/server/models"
	"github.com/imalive/server/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedEngine() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetUint(ContextUserIDKey), "name": c.GetString(ContextUsernameKey)})
	})
	r.GET("/admin", AuthRequired(), AdminRequired(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	config.Set(config.AppConfig{JWTSecret: "mw-secret", AdminUsernames: []string{"Root"}})
	utils.SetRedis(nil)
	r := protectedEngine()

	tok, _, err := utils.GenerateToken(7, "alice")
	require.NoError(t, err)

	w := get(r, "/me", "Authorization", "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7,"name":"alice"}`, w.Body.String())

	// websocket clients pass the token in the query string
	w = get(r, "/me?token="+tok)
	assert.Equal(t, http.StatusOK, w.Code)

	cases := []struct {
		name   string
		header []string
		code   string
	}{
		{"missing", nil, "40101"},
		{"wrong scheme", []string{"Authorization", "Basic abc"}, "40102"},
		{"empty token", []string{"Authorization", "Bearer  "}, "40103"},
		{"garbage", []string{"Authorization", "Bearer abc"}, "40105"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(r, "/me", tc.header...)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}

	utils.BlacklistToken(tok, time.Now().Add(time.Hour))
	w = get(r, "/me", "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "40104")
}

func TestAdminRequired(t *testing.T) {
	config.Set(config.AppConfig{JWTSecret: "mw-secret", AdminUsernames: []string{"Root"}})
	utils.SetRedis(nil)
	r := protectedEngine()

	admin, _, err := utils.GenerateToken(1, "root")
	require.NoError(t, err)
	user, _, err := utils.GenerateToken(2, "bob")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, get(r, "/admin", "Authorization", "Bearer "+admin).Code)
	w := get(r, "/admin", "Authorization", "Bearer "+user)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "40301")
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(4))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	// burst is half the per-minute budget
	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	w := get(r, "/")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "42901")

	// a different client has its own bucket
	assert.Equal(t, http.StatusOK, get(r, "/", "X-Forwarded-For", "203.0.113.9").Code)
}

func TestLimiterSetForgetsIdleClients(t *testing.T) {
	s := &limiterSet{buckets: map[string]*ipLimiter{}, limit: 0, burst: 1}
	now := time.Now()
	assert.True(t, s.allow("a", now))
	assert.False(t, s.allow("a", now))
	assert.True(t, s.allow("b", now.Add(limiterIdle+time.Second)))
	assert.NotContains(t, s.buckets, "a")
	assert.True(t, s.allow("a", now.Add(limiterIdle+time.Second)))
}

func TestRequestCounter(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.AutoMigrate(&models.RequestCount{}))

	r := gin.New()
	r.Use(RequestCounter(db, time.Local))
	r.GET("/posts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	get(r, "/posts/1")
	get(r, "/posts/2")
	get(r, "/fail")
	get(r, "/health")
	get(r, "/missing")

	var rows []models.RequestCount
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "GET /posts/:id", rows[0].Route)
	assert.EqualValues(t, 2, rows[0].Count)
}
