package policy

import (
	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderScope describes which orders a principal may see. It is applied in
// two interchangeable ways: pushed into a ListOrders query via Apply, or
// evaluated per row via Allows. Both must agree; the tests hold them to it.
type OrderScope struct {
	// None denies everything. Apply cannot express an empty result set,
	// so callers must check None before querying.
	None bool
	// TailorID, when set, restricts to orders assigned to that tailor.
	TailorID uuid.UUID
	// Location, when non-empty, restricts to orders at that unit.
	Location string
}

// ScopeFor derives the order visibility scope for a principal.
func (p Policy) ScopeFor(pr Principal) OrderScope {
	switch pr.Role {
	case enum.UserRoleAdmin:
		return OrderScope{}
	case enum.UserRoleManager:
		if p.LocationScoping && pr.Location != "" {
			return OrderScope{Location: pr.Location}
		}
		// A manager with no unit on file sees every order. Tightening
		// this to deny would strand orders nobody below admin can see.
		return OrderScope{}
	case enum.UserRoleTailor:
		return OrderScope{TailorID: pr.UserID}
	}
	return OrderScope{None: true}
}

// Allows reports whether the order falls inside the scope.
// Unassigned orders fail a tailor scope; orders with no recorded location
// fail a location scope.
func (s OrderScope) Allows(o database.Order) bool {
	if s.None {
		return false
	}
	if s.TailorID != uuid.Nil {
		if !o.AssignedTailorID.Valid || uuid.UUID(o.AssignedTailorID.Bytes) != s.TailorID {
			return false
		}
	}
	if s.Location != "" {
		if !o.Location.Valid || o.Location.String != s.Location {
			return false
		}
	}
	return true
}

// Apply narrows query params in place. Conflicts reports whether a
// caller-supplied filter contradicts the scope, in which case the result
// set is empty and no query is needed.
func (s OrderScope) Apply(params *database.ListOrdersParams) {
	if s.TailorID != uuid.Nil {
		params.AssignedTailorID = pgtype.UUID{Bytes: s.TailorID, Valid: true}
	}
	if s.Location != "" {
		params.Location = pgtype.Text{String: s.Location, Valid: true}
	}
}

// Conflicts reports whether params filter on a tailor or location outside
// the scope. Scoped listings check this before Apply and short-circuit to
// an empty result.
func (s OrderScope) Conflicts(params database.ListOrdersParams) bool {
	if s.None {
		return true
	}
	if s.TailorID != uuid.Nil && params.AssignedTailorID.Valid && uuid.UUID(params.AssignedTailorID.Bytes) != s.TailorID {
		return true
	}
	if s.Location != "" && params.Location.Valid && params.Location.String != s.Location {
		return true
	}
	return false
}
