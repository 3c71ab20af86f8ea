package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ledgerwise/coaching-backend/internal/auth"
	"github.com/ledgerwise/coaching-backend/internal/models"
	"github.com/ledgerwise/coaching-backend/internal/tenant"
)

const secret = "middleware-secret"

type resolverFunc func(ctx context.Context, id uuid.UUID) (auth.Identity, error)

func (f resolverFunc) Resolve(ctx context.Context, id uuid.UUID) (auth.Identity, error) { return f(ctx, id) }

func token(t *testing.T, sub uuid.UUID) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func router(ids IdentityResolver, logger *zap.Logger, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{Authenticate(auth.NewValidator(secret, "", 0), ids, logger)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		tc, ok := tenant.FromContext(c.Request.Context())
		if !ok {
			c.String(http.StatusTeapot, "no tenant")
			return
		}
		org, _ := tc.OrganizationID()
		c.JSON(http.StatusOK, gin.H{"actor": tc.ActorID(), "role": tc.Role(), "org": org})
	})
	r.GET("/me", chain...)
	return r
}

func get(r http.Handler, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate_AttachesTenantFromDatabaseIdentity(t *testing.T) {
	uid, org := uuid.New(), uuid.New()
	ids := resolverFunc(func(_ context.Context, id uuid.UUID) (auth.Identity, error) {
		assert.Equal(t, uid, id)
		return auth.Identity{UserID: uid, Role: models.RoleEmployee, OrganizationID: &org}, nil
	})
	w := get(router(ids, nil), "Bearer "+token(t, uid))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"EMPLOYEE"`)
	assert.Contains(t, w.Body.String(), org.String())
}

func TestAuthenticate_Rejections(t *testing.T) {
	uid := uuid.New()
	known := resolverFunc(func(context.Context, uuid.UUID) (auth.Identity, error) {
		return auth.Identity{UserID: uid, Role: models.RoleAdmin}, nil
	})
	r := router(known, nil)

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer nope").Code)

	unknown := resolverFunc(func(context.Context, uuid.UUID) (auth.Identity, error) { return auth.Identity{}, auth.ErrUnknownUser })
	assert.Equal(t, http.StatusUnauthorized, get(router(unknown, nil), "Bearer "+token(t, uid)).Code)

	down := resolverFunc(func(context.Context, uuid.UUID) (auth.Identity, error) { return auth.Identity{}, errors.New("pool closed") })
	assert.Equal(t, http.StatusServiceUnavailable, get(router(down, nil), "Bearer "+token(t, uid)).Code)
}

func TestAuthenticate_DeactivatedAndMisconfiguredAreSecurityViolations(t *testing.T) {
	uid := uuid.New()
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	inactive := resolverFunc(func(context.Context, uuid.UUID) (auth.Identity, error) {
		return auth.Identity{}, auth.ErrInactiveOrganization
	})
	assert.Equal(t, http.StatusForbidden, get(router(inactive, logger), "Bearer "+token(t, uid)).Code)

	noOrg := resolverFunc(func(context.Context, uuid.UUID) (auth.Identity, error) {
		return auth.Identity{UserID: uid, Role: models.RoleHR}, nil
	})
	assert.Equal(t, http.StatusForbidden, get(router(noOrg, logger), "Bearer "+token(t, uid)).Code)

	entries := logs.FilterMessage("security_violation").All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "security_violation", e.ContextMap()["event"])
		assert.Equal(t, uid.String(), e.ContextMap()["user_id"])
	}
}

func TestRequireRole(t *testing.T) {
	uid, org := uuid.New(), uuid.New()
	hr := resolverFunc(func(context.Context, uuid.UUID) (auth.Identity, error) {
		return auth.Identity{UserID: uid, Role: models.RoleHR, OrganizationID: &org}, nil
	})
	bearer := "Bearer " + token(t, uid)

	assert.Equal(t, http.StatusOK, get(router(hr, nil, RequireRole(models.RoleHR, models.RoleAdmin)), bearer).Code)
	assert.Equal(t, http.StatusForbidden, get(router(hr, nil, RequireRole(models.RoleEmployee)), bearer).Code)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
}

func TestLogger_IncludesActor(t *testing.T) {
	uid, org := uuid.New(), uuid.New()
	ids := resolverFunc(func(context.Context, uuid.UUID) (auth.Identity, error) {
		return auth.Identity{UserID: uid, Role: models.RoleEmployee, OrganizationID: &org}, nil
	})
	core, logs := observer.New(zapcore.InfoLevel)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/me", Authenticate(auth.NewValidator(secret, "", 0), ids, nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/open", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	get(r, "Bearer "+token(t, uid))
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, uid.String(), entries[0].ContextMap()["actor_id"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.NotContains(t, entries[1].ContextMap(), "actor_id")
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("http://a.test, http://b.test"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://b.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://b.test", w.Header().Get("Access-Control-Allow-Origin"))
	methods := w.Header().Get("Access-Control-Allow-Methods")
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete} {
		assert.Contains(t, methods, m)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
