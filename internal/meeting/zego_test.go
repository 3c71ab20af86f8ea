package meeting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewZego_ValidatesCredentials(t *testing.T) {
	_, err := NewZego(0, testSecret, time.Minute, nil)
	assert.Error(t, err)
	_, err = NewZego(1, "short", time.Minute, nil)
	assert.Error(t, err)
	z, err := NewZego(1, testSecret, time.Minute, nil)
	require.NoError(t, err)
	assert.NotNil(t, z)
}

func TestZego_ReserveIssuesTokensForBothParticipants(t *testing.T) {
	z, err := NewZego(123456789, testSecret, 15*time.Minute, nil)
	require.NoError(t, err)
	now := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	z.now = func() time.Time { return now }

	req := Request{
		BookingID:  uuid.New(),
		CoachID:    uuid.New(),
		EmployeeID: uuid.New(),
		StartsAt:   now.Add(time.Hour),
		EndsAt:     now.Add(2 * time.Hour),
	}
	res, err := z.Reserve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.RoomID(), res.RoomID)
	assert.True(t, strings.HasPrefix(res.RoomID, "consult-"))
	assert.NotEmpty(t, res.CoachToken)
	assert.NotEmpty(t, res.EmployeeToken)
	assert.NotEqual(t, res.CoachToken, res.EmployeeToken)
	assert.Equal(t, req.EndsAt.Add(15*time.Minute), res.ExpiresAt)
	assert.NoError(t, z.Release(context.Background(), res.RoomID))
}

func TestZego_ReserveRejectsFinishedSession(t *testing.T) {
	z, err := NewZego(1, testSecret, 0, nil)
	require.NoError(t, err)
	now := time.Now()
	z.now = func() time.Time { return now }

	_, err = z.Reserve(context.Background(), Request{BookingID: uuid.New(), EndsAt: now.Add(-time.Minute)})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNoop_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Noop{}.Reserve(ctx, Request{BookingID: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)

	res, err := Noop{}.Reserve(context.Background(), Request{BookingID: uuid.New()})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RoomID)
}
