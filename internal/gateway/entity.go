package gateway

// Entity names a tenant-owned entity type.
type Entity string

const (
	EntityUsers            Entity = "users"
	EntityAccounts         Entity = "accounts"
	EntityTransactions     Entity = "financial_transactions"
	EntityMonthlySummaries Entity = "monthly_summaries"
	EntityBookings         Entity = "consultation_bookings"
)

// Entities lists every tenant-owned entity the gateway guards.
var Entities = []Entity{
	EntityUsers,
	EntityAccounts,
	EntityTransactions,
	EntityMonthlySummaries,
	EntityBookings,
}

type entitySpec struct {
	table       string
	columns     []string
	orgColumn   string
	ownerColumn string
	coachColumn string
	orderBy     string
	// fixed columns never change after insert, whatever the scope.
	fixed []string
}

func (s entitySpec) hasColumn(name string) bool {
	for _, c := range s.columns {
		if c == name {
			return true
		}
	}
	return false
}

var entitySpecs = map[Entity]entitySpec{
	EntityUsers: {
		table:       "users",
		columns:     []string{"id", "email", "full_name", "role", "organization_id", "active", "created_at", "updated_at"},
		orgColumn:   "organization_id",
		ownerColumn: "id",
		orderBy:     "created_at ASC",
		fixed:       []string{"role"},
	},
	EntityAccounts: {
		table:       "accounts",
		columns:     []string{"id", "organization_id", "user_id", "name", "kind", "balance_cents", "currency", "created_at", "updated_at"},
		orgColumn:   "organization_id",
		ownerColumn: "user_id",
		orderBy:     "created_at ASC",
	},
	EntityTransactions: {
		table:       "financial_transactions",
		columns:     []string{"id", "organization_id", "user_id", "account_id", "amount_cents", "currency", "category", "description", "occurred_at", "created_at"},
		orgColumn:   "organization_id",
		ownerColumn: "user_id",
		orderBy:     "occurred_at DESC",
	},
	EntityMonthlySummaries: {
		table:       "monthly_summaries",
		columns:     []string{"id", "organization_id", "user_id", "month", "income_cents", "expense_cents", "savings_cents", "created_at"},
		orgColumn:   "organization_id",
		ownerColumn: "user_id",
		orderBy:     "month DESC",
	},
	EntityBookings: {
		table: "consultation_bookings",
		columns: []string{
			"id", "slot_id", "coach_id", "employee_id", "organization_id", "status", "meeting_room_id",
			"cancelled_by", "cancelled_at", "cancellation_reason", "completed_at", "created_at", "updated_at",
		},
		orgColumn:   "organization_id",
		ownerColumn: "employee_id",
		coachColumn: "coach_id",
		orderBy:     "created_at DESC",
		fixed:       []string{"slot_id", "employee_id", "coach_id", "organization_id"},
	},
}
