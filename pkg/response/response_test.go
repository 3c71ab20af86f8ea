package response

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	OK(c, gin.H{"n": 1})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"n":1}}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Conflict(c, "slot is not available")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"slot is not available"}`, w.Body.String())
}

func TestRetryLater(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for after, want := range map[time.Duration]string{0: "1", 1500 * time.Millisecond: "2", 5 * time.Second: "5"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		RetryLater(c, "busy", after)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, want, w.Header().Get("Retry-After"))
	}
}
