package gateway

import "github.com/ledgerwise/coaching-backend/internal/models"

// Op is the class of data access being requested.
type Op int

const (
	OpRead Op = iota
	OpCreate
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Mode is how a call is confined to the actor's data.
type Mode int

const (
	// ModeDenied rejects the call.
	ModeDenied Mode = iota
	// ModeGlobal applies no tenant predicate.
	ModeGlobal
	// ModeOrganization confines rows to the actor's organization.
	ModeOrganization
	// ModeOwner confines rows to the actor's organization and to rows the actor owns.
	ModeOwner
	// ModeCoach confines rows to those served by the coach actor.
	ModeCoach
)

func (m Mode) String() string {
	switch m {
	case ModeDenied:
		return "denied"
	case ModeGlobal:
		return "global"
	case ModeOrganization:
		return "organization"
	case ModeOwner:
		return "owner"
	case ModeCoach:
		return "coach"
	}
	return "unknown"
}

func (m Mode) needsOrganization() bool {
	return m == ModeOrganization || m == ModeOwner
}

type access struct {
	read   Mode
	create Mode
	modify Mode
}

func (a access) mode(op Op) Mode {
	switch op {
	case OpRead:
		return a.read
	case OpCreate:
		return a.create
	case OpUpdate, OpDelete:
		return a.modify
	}
	return ModeDenied
}

var (
	global   = access{read: ModeGlobal, create: ModeGlobal, modify: ModeGlobal}
	orgWide  = access{read: ModeOrganization, create: ModeOrganization, modify: ModeOrganization}
	owned    = access{read: ModeOwner, create: ModeOwner, modify: ModeOwner}
	ownRead  = access{read: ModeOwner}
	orgRead  = access{read: ModeOrganization}
	coachSvc = access{read: ModeCoach, modify: ModeCoach}
	denied   = access{}
)

// capabilities is keyed by entity then role. Missing roles are denied.
var capabilities = map[Entity]map[models.Role]access{
	EntityUsers: {
		models.RoleAdmin:    global,
		models.RoleHR:       orgWide,
		models.RoleEmployee: ownRead,
		models.RoleCoach:    denied,
	},
	EntityAccounts: {
		models.RoleAdmin:    global,
		models.RoleHR:       denied,
		models.RoleEmployee: owned,
		models.RoleCoach:    denied,
	},
	EntityTransactions: {
		models.RoleAdmin:    global,
		models.RoleHR:       denied,
		models.RoleEmployee: owned,
		models.RoleCoach:    denied,
	},
	EntityMonthlySummaries: {
		models.RoleAdmin:    global,
		models.RoleHR:       denied,
		models.RoleEmployee: ownRead,
		models.RoleCoach:    denied,
	},
	EntityBookings: {
		models.RoleAdmin:    global,
		models.RoleHR:       orgRead,
		models.RoleEmployee: owned,
		models.RoleCoach:    coachSvc,
	},
}

// adminDeleteOnly lists entities whose rows only a global scope may delete.
var adminDeleteOnly = map[Entity]bool{
	EntityBookings: true,
}

var bookingCancelColumns = []string{"status", "cancelled_by", "cancelled_at", "cancellation_reason", "updated_at"}

// createRules and updateRules narrow non-global writes. Users created inside an
// organization are HR or employees. Booking rows only move the way the booking
// transactor moves them: created CONFIRMED, then cancelled by either party or
// completed by the coach.
var (
	createRules = map[Entity]map[Mode]writeRule{
		EntityUsers: {
			ModeOrganization: {values: map[string][]string{
				"role": {string(models.RoleHR), string(models.RoleEmployee)},
			}},
		},
		EntityBookings: {
			ModeOwner: {
				columns: []string{"id", "slot_id", "coach_id", "employee_id", "organization_id", "status", "meeting_room_id", "created_at", "updated_at"},
				values:  map[string][]string{"status": {string(models.BookingConfirmed)}},
			},
		},
	}
	updateRules = map[Entity]map[Mode]writeRule{
		EntityBookings: {
			ModeOwner: {
				columns: bookingCancelColumns,
				values:  map[string][]string{"status": {string(models.BookingCancelled)}},
			},
			ModeCoach: {
				columns: append([]string{"completed_at"}, bookingCancelColumns...),
				values:  map[string][]string{"status": {string(models.BookingCancelled), string(models.BookingCompleted)}},
			},
		},
	}
)

func modeFor(entity Entity, role models.Role, op Op) Mode {
	byRole, ok := capabilities[entity]
	if !ok {
		return ModeDenied
	}
	mode := byRole[role].mode(op)
	if op == OpDelete && adminDeleteOnly[entity] && mode != ModeGlobal {
		return ModeDenied
	}
	return mode
}
