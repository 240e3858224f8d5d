package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/imalive/server/services"
)

func TestParsePagination(t *testing.T) {
	page, size := parsePagination("", "", 20)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)

	page, size = parsePagination("3", "50", 20)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, size)

	page, size = parsePagination("-1", "1000", 20)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://api.example.com/api/v1/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("")))
	assert.True(t, check(req("https://APP.example.com")))
	assert.True(t, check(req("http://api.example.com")))
	assert.False(t, check(req("https://evil.example.com")))

	assert.True(t, originChecker([]string{"*"})(req("https://anything.test")))
}

func TestServiceErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{services.ErrAlreadyCheckedIn, http.StatusBadRequest, 40030},
		{fmt.Errorf("%w: bad", services.ErrInvalidMoodTag), http.StatusBadRequest, 40031},
		{services.ErrUserNotFound, http.StatusNotFound, 40401},
		{services.ErrWrongPassword, http.StatusBadRequest, 40010},
		{services.ErrNotFriends, http.StatusForbidden, 40302},
		{fmt.Errorf("%w: db down", services.ErrStorageUnavailable), http.StatusServiceUnavailable, 50330},
		{errors.New("boom"), http.StatusInternalServerError, 50000},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		serviceError(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), fmt.Sprintf(`"code":%d`, tc.code))
	}
}

func TestPresetAvatars(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.True(t, isPresetAvatar(randomAvatar()))
	}
	assert.False(t, isPresetAvatar("<img>"))
}

func TestRemindCooldownRemaining(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	m := &MessageController{cooldown: time.Hour, now: func() time.Time { return now }}
	assert.Zero(t, m.remaining(time.Time{}))
	assert.Zero(t, m.remaining(now.Add(-2*time.Hour)))
	assert.Equal(t, 30, m.remaining(now.Add(-30*time.Minute)))
	assert.Equal(t, 1, m.remaining(now.Add(-59*time.Minute-30*time.Second)), "partial minutes round up")
}
