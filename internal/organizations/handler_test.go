package organizations

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwise/coaching-backend/internal/gateway"
	"github.com/ledgerwise/coaching-backend/internal/models"
	"github.com/ledgerwise/coaching-backend/internal/tenant"
)

type execDB struct {
	tag   string
	empty bool
	sqls  []string
	args  [][]any
}

// emptyRows is a result set with no rows.
type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 0") }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(...any) error                            { return errors.New("no rows") }
func (emptyRows) Values() ([]any, error)                       { return nil, errors.New("no rows") }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

func (d *execDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.sqls, d.args = append(d.sqls, sql), append(d.args, args)
	return pgconn.NewCommandTag(d.tag), nil
}

func (d *execDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.sqls, d.args = append(d.sqls, sql), append(d.args, args)
	if d.empty {
		return emptyRows{}, nil
	}
	return nil, errors.New("offline")
}

func (d *execDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	d.sqls = append(d.sqls, sql)
	return nil
}

func serve(t *testing.T, db *execDB, role models.Role, org *uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api", func(c *gin.Context) {
		tc, err := tenant.New(uuid.New(), role, org)
		require.NoError(t, err)
		ctx, err := tenant.WithContext(c.Request.Context(), tc)
		require.NoError(t, err)
		c.Request = c.Request.WithContext(ctx)
	})
	NewHandler(gateway.New(db, nil, nil), nil).Register(g)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetActive_HRIsConfinedToOwnOrganization(t *testing.T) {
	org, target := uuid.New(), uuid.New()
	db := &execDB{tag: "UPDATE 1"}
	w := serve(t, db, models.RoleHR, &org, http.MethodPatch, "/api/organizations/members/"+target.String(), `{"active":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, db.sqls, 1)
	assert.Equal(t, "UPDATE users SET active = $1, updated_at = $2 WHERE organization_id = $3 AND id = $4", db.sqls[0])
	assert.Equal(t, false, db.args[0][0])
	assert.Equal(t, org, db.args[0][2])
	assert.Equal(t, target, db.args[0][3])
}

func TestSetActive_OutsideScopeIsNotFound(t *testing.T) {
	org := uuid.New()
	db := &execDB{tag: "UPDATE 0"}
	w := serve(t, db, models.RoleHR, &org, http.MethodPatch, "/api/organizations/members/"+uuid.NewString(), `{"active":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetActive_EmployeeAndCoachDenied(t *testing.T) {
	org := uuid.New()
	db := &execDB{tag: "UPDATE 1"}
	w := serve(t, db, models.RoleEmployee, &org, http.MethodPatch, "/api/organizations/members/"+uuid.NewString(), `{"active":true}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = serve(t, db, models.RoleCoach, nil, http.MethodGet, "/api/organizations/members", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, db.sqls)
}

func TestListMembers_Validation(t *testing.T) {
	org := uuid.New()
	db := &execDB{}
	assert.Equal(t, http.StatusBadRequest, serve(t, db, models.RoleHR, &org, http.MethodGet, "/api/organizations/members?role=OWNER", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, db, models.RoleHR, &org, http.MethodGet, "/api/organizations/members?active=maybe", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, db, models.RoleHR, &org, http.MethodPatch, "/api/organizations/members/"+uuid.NewString(), `{}`).Code)
	assert.Empty(t, db.sqls)
}

func TestGetMember_EmployeeCannotReadAnotherUser(t *testing.T) {
	org, other := uuid.New(), uuid.New()
	db := &execDB{empty: true}
	w := serve(t, db, models.RoleEmployee, &org, http.MethodGet, "/api/organizations/members/"+other.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, db.sqls, 1)
	assert.Contains(t, db.sqls[0], "WHERE organization_id = $1 AND id = $2 AND id = $3 ORDER BY")
	assert.Equal(t, org, db.args[0][0])
	assert.Equal(t, other, db.args[0][2])
}
