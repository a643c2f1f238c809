package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockledger/internal/apperror"
)

func newErrorEngine(err error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(requestIDKey, "req-1")
		c.Next()
	})
	r.Use(ErrorMiddleware(nil))
	r.GET("/", func(c *gin.Context) { _ = c.Error(err) })
	return r
}

func serve(t *testing.T, r *gin.Engine) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestErrorMiddlewareRendersAppError(t *testing.T) {
	code, body := serve(t, newErrorEngine(apperror.NewStockNotFound("Rice", "kg")))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperror.CodeNotFound, body["code"])
	details, _ := body["details"].(map[string]any)
	assert.Equal(t, "Rice", details["product"])
}

func TestErrorMiddlewareHidesInternalCause(t *testing.T) {
	code, body := serve(t, newErrorEngine(errors.New("mongo: socket closed")))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, body["message"], "socket")
	details, _ := body["details"].(map[string]any)
	assert.Equal(t, "req-1", details["request_id"])
}

func TestBindErrorListsFields(t *testing.T) {
	RegisterValidators()

	type payload struct {
		Product string `json:"product" binding:"required"`
		Unit    string `json:"unit" binding:"required,stockunit"`
	}
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unit":"barrels"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var p payload
	err := c.ShouldBindJSON(&p)
	require.Error(t, err)

	appErr := bindError(err)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	fields, _ := appErr.Details["fields"].(map[string]any)
	assert.Equal(t, "required", fields["product"])
	assert.Equal(t, "stockunit", fields["unit"])
}

func TestBindErrorOnMalformedJSON(t *testing.T) {
	appErr := bindError(errors.New("unexpected EOF"))
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, "malformed request body", appErr.Message)
}
