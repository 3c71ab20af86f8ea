package tenant

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwise/coaching-backend/internal/models"
)

func TestNew_RequiresOrganizationForScopedRoles(t *testing.T) {
	for _, role := range []models.Role{models.RoleHR, models.RoleEmployee} {
		_, err := New(uuid.New(), role, nil)
		assert.ErrorIs(t, err, ErrMissingOrganization, role)

		nilOrg := uuid.Nil
		_, err = New(uuid.New(), role, &nilOrg)
		assert.ErrorIs(t, err, ErrMissingOrganization, role)
	}
}

func TestNew_AdminAndCoachWithoutOrganization(t *testing.T) {
	for _, role := range []models.Role{models.RoleAdmin, models.RoleCoach} {
		tc, err := New(uuid.New(), role, nil)
		require.NoError(t, err)
		_, hasOrg := tc.OrganizationID()
		assert.False(t, hasOrg)
		assert.Equal(t, role, tc.Role())
	}
}

func TestNew_RejectsBadInput(t *testing.T) {
	org := uuid.New()
	_, err := New(uuid.New(), models.Role("OWNER"), &org)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = New(uuid.Nil, models.RoleEmployee, &org)
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestWithContext_AttachOnce(t *testing.T) {
	org := uuid.New()
	tc, err := New(uuid.New(), models.RoleEmployee, &org)
	require.NoError(t, err)

	ctx, err := WithContext(context.Background(), tc)
	require.NoError(t, err)

	got, err := Require(ctx)
	require.NoError(t, err)
	assert.Equal(t, tc, got)

	other, err := New(uuid.New(), models.RoleAdmin, nil)
	require.NoError(t, err)
	_, err = WithContext(ctx, other)
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

func TestRequire_NoContext(t *testing.T) {
	_, err := Require(context.Background())
	assert.ErrorIs(t, err, ErrNoContext)

	_, err = WithContext(context.Background(), Context{})
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestContextsDoNotLeakAcrossGoroutines(t *testing.T) {
	base := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			org := uuid.New()
			actor := uuid.New()
			tc, err := New(actor, models.RoleEmployee, &org)
			if !assert.NoError(t, err) {
				return
			}
			ctx, err := WithContext(base, tc)
			if !assert.NoError(t, err) {
				return
			}
			got, err := Require(ctx)
			if !assert.NoError(t, err) {
				return
			}
			gotOrg, _ := got.OrganizationID()
			assert.Equal(t, actor, got.ActorID())
			assert.Equal(t, org, gotOrg)
		}()
	}
	wg.Wait()

	_, ok := FromContext(base)
	assert.False(t, ok)
}
