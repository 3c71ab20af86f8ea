package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwise/coaching-backend/internal/models"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func claimsFor(sub string, exp time.Time) Claims {
	return Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "idp",
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
}

func TestValidator(t *testing.T) {
	v := NewValidator(secret, "idp", 0)
	uid := uuid.New()

	tok := sign(t, claimsFor(uid.String(), time.Now().Add(time.Hour)), jwt.SigningMethodHS256, []byte(secret))
	c, err := v.Validate(tok)
	require.NoError(t, err)
	got, err := c.UserID()
	require.NoError(t, err)
	assert.Equal(t, uid, got)

	cases := map[string]string{
		"expired":      sign(t, claimsFor(uid.String(), time.Now().Add(-time.Hour)), jwt.SigningMethodHS256, []byte(secret)),
		"wrong secret": sign(t, claimsFor(uid.String(), time.Now().Add(time.Hour)), jwt.SigningMethodHS256, []byte("other")),
		"bad subject":  sign(t, claimsFor("admin", time.Now().Add(time.Hour)), jwt.SigningMethodHS256, []byte(secret)),
		"no expiry":    sign(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid.String(), Issuer: "idp"}}, jwt.SigningMethodHS256, []byte(secret)),
		"none alg":     sign(t, claimsFor(uid.String(), time.Now().Add(time.Hour)), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType),
		"garbage":      "not.a.token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	wrongIss := claimsFor(uid.String(), time.Now().Add(time.Hour))
	wrongIss.Issuer = "someone-else"
	_, err = v.Validate(sign(t, wrongIss, jwt.SigningMethodHS256, []byte(secret)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type fakeRow struct {
	id        uuid.UUID
	role      string
	org       *uuid.UUID
	active    bool
	orgActive bool
	err       error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*uuid.UUID) = r.id
	*dest[1].(*string) = r.role
	*dest[2].(**uuid.UUID) = r.org
	*dest[3].(*bool) = r.active
	*dest[4].(*bool) = r.orgActive
	return nil
}

type fakeDB struct {
	row  fakeRow
	args []any
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.args = args
	return f.row
}

func TestRepository_Resolve(t *testing.T) {
	uid, org := uuid.New(), uuid.New()
	ctx := context.Background()

	db := &fakeDB{row: fakeRow{id: uid, role: "HR", org: &org, active: true, orgActive: true}}
	id, err := NewRepository(db).Resolve(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, models.RoleHR, id.Role)
	assert.Equal(t, &org, id.OrganizationID)
	assert.Equal(t, []any{uid}, db.args)

	_, err = NewRepository(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}).Resolve(ctx, uid)
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = NewRepository(&fakeDB{row: fakeRow{id: uid, role: "EMPLOYEE", org: &org, active: false, orgActive: true}}).Resolve(ctx, uid)
	assert.ErrorIs(t, err, ErrInactiveUser)

	_, err = NewRepository(&fakeDB{row: fakeRow{id: uid, role: "EMPLOYEE", org: &org, active: true, orgActive: false}}).Resolve(ctx, uid)
	assert.ErrorIs(t, err, ErrInactiveOrganization)

	boom := errors.New("conn reset")
	_, err = NewRepository(&fakeDB{row: fakeRow{err: boom}}).Resolve(ctx, uid)
	assert.ErrorIs(t, err, boom)
}
