package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesAreOrderedAndEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_schema.sql", names[0])
	assert.IsIncreasing(t, names)

	schema, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	for _, table := range []string{"organizations", "users", "coach_slots", "consultation_bookings", "accounts", "financial_transactions", "monthly_summaries"} {
		assert.Contains(t, string(schema), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, string(schema), "WHERE status <> 'CANCELLED'")
}
