package gateway

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Filter is a set of equality predicates keyed by column. A nil value matches NULL.
type Filter map[string]any

// Row is one entity row keyed by column.
type Row map[string]any

// Scope is the resolved confinement of one call. It is computed from the Tenant
// Context by Gateway.Authorize and is the only input statements trust for tenancy.
type Scope struct {
	Entity         Entity
	Op             Op
	Mode           Mode
	ActorID        uuid.UUID
	OrganizationID uuid.UUID
}

type predicate struct {
	column string
	value  any
}

// predicates returns the tenancy predicates the scope forces onto every statement.
func (s Scope) predicates(spec entitySpec) []predicate {
	var out []predicate
	switch s.Mode {
	case ModeOrganization:
		out = append(out, predicate{spec.orgColumn, s.OrganizationID})
	case ModeOwner:
		out = append(out, predicate{spec.orgColumn, s.OrganizationID})
		if spec.ownerColumn != "" && spec.ownerColumn != spec.orgColumn {
			out = append(out, predicate{spec.ownerColumn, s.ActorID})
		}
	case ModeCoach:
		out = append(out, predicate{spec.coachColumn, s.ActorID})
	}
	return out
}

// overridden returns the columns whose caller values are replaced by the
// scope. Only the organization is overridden; a caller value for an owner or
// coach column stays as an extra predicate, so naming another actor's row
// matches nothing.
func (s Scope) overridden(spec entitySpec) map[string]bool {
	out := map[string]bool{}
	if s.Mode.needsOrganization() {
		out[spec.orgColumn] = true
	}
	return out
}

// constrain merges a caller filter with the scope predicates. Caller values for
// overridden columns are dropped, as are values the scope already enforces.
func (s Scope) constrain(spec entitySpec, filter Filter) ([]predicate, error) {
	overridden := s.overridden(spec)
	out := s.predicates(spec)
	forced := make(map[string]any, len(out))
	for _, p := range out {
		forced[p.column] = p.value
	}

	keys := make([]string, 0, len(filter))
	for col, v := range filter {
		if !spec.hasColumn(col) {
			return nil, unknownColumn(col)
		}
		if overridden[col] {
			continue
		}
		if fv, ok := forced[col]; ok && sameValue(fv, v) {
			continue
		}
		keys = append(keys, col)
	}
	sort.Strings(keys)
	for _, col := range keys {
		out = append(out, predicate{col, filter[col]})
	}
	return out, nil
}

func sameValue(a, b any) bool {
	id, ok := a.(uuid.UUID)
	if !ok {
		return false
	}
	switch v := b.(type) {
	case uuid.UUID:
		return v == id
	case *uuid.UUID:
		return v != nil && *v == id
	}
	return false
}

// stamp overwrites the scope-owned columns of a new row with context values.
func (s Scope) stamp(spec entitySpec, row Row) Row {
	out := make(Row, len(row)+2)
	for k, v := range row {
		out[k] = v
	}
	for _, p := range s.predicates(spec) {
		out[p.column] = p.value
	}
	return out
}

// immutable returns the columns an update may not touch under this scope.
func (s Scope) immutable(spec entitySpec) map[string]bool {
	out := map[string]bool{"id": true, "created_at": true}
	for _, col := range spec.fixed {
		out[col] = true
	}
	if s.Mode == ModeGlobal {
		return out
	}
	for _, col := range []string{spec.orgColumn, spec.ownerColumn, spec.coachColumn} {
		if col != "" {
			out[col] = true
		}
	}
	return out
}

// writeRule narrows a non-global write to the columns and values its owner
// performs. A nil columns list allows any column.
type writeRule struct {
	columns []string
	values  map[string][]string
}

// check rejects payload columns outside the rule and required columns whose
// value is missing or not allowed.
func (r writeRule) check(payload Row) error {
	if r.columns != nil {
		allowed := make(map[string]bool, len(r.columns))
		for _, c := range r.columns {
			allowed[c] = true
		}
		for col := range payload {
			if !allowed[col] {
				return fmt.Errorf("%w: %q", ErrDisallowedWrite, col)
			}
		}
	}
	for col, values := range r.values {
		v, ok := payload[col]
		if !ok {
			return fmt.Errorf("%w: %q is required", ErrDisallowedWrite, col)
		}
		got := fmt.Sprint(v)
		permitted := false
		for _, want := range values {
			if got == want {
				permitted = true
				break
			}
		}
		if !permitted {
			return fmt.Errorf("%w: %s = %q", ErrDisallowedWrite, col, got)
		}
	}
	return nil
}

func (s Scope) writeRule(op Op) (writeRule, bool) {
	var rules map[Entity]map[Mode]writeRule
	switch op {
	case OpCreate:
		rules = createRules
	case OpUpdate:
		rules = updateRules
	default:
		return writeRule{}, false
	}
	r, ok := rules[s.Entity][s.Mode]
	return r, ok
}
