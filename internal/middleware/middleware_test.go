package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type stubChecker struct {
	granted map[string]bool
	err     error
}

func (s stubChecker) HasPermission(_ uuid.UUID, slug string) (bool, error) {
	return s.granted[slug], s.err
}

func init() {
	gin.SetMode(gin.TestMode)
	if err := i18n.Initialize(); err != nil {
		panic(err)
	}
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(I18nMiddleware())
	chain := append(handlers, func(c *gin.Context) {
		uid, _ := utils.GetUserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": uid, "cart_session": utils.GetCartSessionFromContext(c)})
	})
	r.GET("/", chain...)
	return r
}

func do(t *testing.T, r http.Handler, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func token(t *testing.T, userType models.UserType) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	tok, err := utils.GenerateJWT(id, "someone@example.com", string(userType), 1)
	require.NoError(t, err)
	return id, "Bearer " + tok
}

func errorCode(body map[string]interface{}) string {
	errObj, _ := body["error"].(map[string]interface{})
	code, _ := errObj["code"].(string)
	return code
}

func TestAuthRequired(t *testing.T) {
	r := newEngine(AuthRequired())

	w, body := do(t, r, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	w, _ = do(t, r, map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, r, map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	refresh, err := utils.GenerateRefreshToken(uuid.New(), 1)
	require.NoError(t, err)
	w, _ = do(t, r, map[string]string{"Authorization": "Bearer " + refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	id, bearer := token(t, models.UserTypeCustomer)
	w, body = do(t, r, map[string]string{"Authorization": bearer})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), body["user_id"])
}

func TestAuthRequiredTranslatesMessages(t *testing.T) {
	r := newEngine(AuthRequired())
	_, body := do(t, r, map[string]string{"Accept-Language": "zh-TW,zh;q=0.9"})
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, i18n.T("zh_TW", i18n.KeyAuthRequired), errObj["message"])
}

func TestOptionalAuth(t *testing.T) {
	r := newEngine(OptionalAuth())

	w, body := do(t, r, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", body["user_id"])

	id, bearer := token(t, models.UserTypeCustomer)
	_, body = do(t, r, map[string]string{"Authorization": bearer})
	assert.Equal(t, id.String(), body["user_id"])
}

func TestStaffRequired(t *testing.T) {
	r := newEngine(AuthRequired(), StaffRequired())

	_, customer := token(t, models.UserTypeCustomer)
	w, body := do(t, r, map[string]string{"Authorization": customer})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	_, staff := token(t, models.UserTypeStaff)
	w, _ = do(t, r, map[string]string{"Authorization": staff})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermission(t *testing.T) {
	checker := stubChecker{granted: map[string]bool{models.PermOrdersRead: true}}
	_, staff := token(t, models.UserTypeStaff)

	w, _ := do(t, newEngine(AuthRequired(), RequirePermission(checker, models.PermOrdersRead)), map[string]string{"Authorization": staff})
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := do(t, newEngine(AuthRequired(), RequirePermission(checker, models.PermOrdersWrite)), map[string]string{"Authorization": staff})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	w, _ = do(t, newEngine(RequirePermission(checker, models.PermOrdersRead)), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	failing := stubChecker{err: errors.New("db down")}
	w, body = do(t, newEngine(AuthRequired(), RequirePermission(failing, models.PermOrdersRead)), map[string]string{"Authorization": staff})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(body))
}

func TestCartSession(t *testing.T) {
	r := newEngine(CartSession())

	w, body := do(t, r, nil)
	issued := w.Header().Get(CartSessionHeader)
	_, err := uuid.Parse(issued)
	require.NoError(t, err)
	assert.Equal(t, issued, body["cart_session"])

	existing := uuid.NewString()
	w, body = do(t, r, map[string]string{CartSessionHeader: existing})
	assert.Equal(t, existing, w.Header().Get(CartSessionHeader))
	assert.Equal(t, existing, body["cart_session"])

	w, _ = do(t, r, map[string]string{CartSessionHeader: "../../etc/passwd"})
	assert.NotEqual(t, "../../etc/passwd", w.Header().Get(CartSessionHeader))
}

func TestRateLimiter(t *testing.T) {
	limiter := PerMinute(2)
	defer limiter.Stop()
	r := newEngine(limiter.Handler())

	for i := 0; i < 2; i++ {
		w, _ := do(t, r, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w, body := do(t, r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(body))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var disabled *RateLimiter
	w, _ = do(t, newEngine(disabled.Handler()), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, PerSecond(0, 5))
}

func TestPreferredLanguage(t *testing.T) {
	assert.Equal(t, "en", PreferredLanguage(""))
	assert.Equal(t, "zh_TW", PreferredLanguage("zh-Hant;q=0.9"))
	assert.Equal(t, "zh_TW", PreferredLanguage("zh_TW"))
	assert.Equal(t, "en", PreferredLanguage("fr-FR,fr;q=0.8"))
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := newEngine(RequestLogger())
	w, _ := do(t, r, map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w, _ = do(t, r, nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
