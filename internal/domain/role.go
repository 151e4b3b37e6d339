package domain

import "strings"

// Role is the label the identity provider attaches to a user.
type Role string

const (
	RoleSlaughterhouse Role = "slaughterhouse"
	RoleTrader         Role = "trader"
	RoleTannery        Role = "tannery"
	RoleGarment        Role = "garment"
	RoleVisitor        Role = "visitor"
	RoleAdmin          Role = "admin"
)

// ParseRole maps a free-form label onto a known Role. Unknown labels become
// RoleVisitor, which can read traces and nothing else.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSlaughterhouse, RoleTrader, RoleTannery, RoleGarment, RoleAdmin:
		return r
	}
	return RoleVisitor
}

// Principal is the authenticated caller of a custody operation.
// Location is the caller's site as reported by the identity provider; it is
// copied onto ledger entries.
type Principal struct {
	UserID   string
	Role     Role
	Location string
}

// Anonymous is the principal used when a request carries no identity.
var Anonymous = Principal{Role: RoleVisitor}

// IsAdmin reports whether p bypasses role checks and ownership scoping.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Authenticated reports whether p identifies a real user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// Entity names the records that scoping applies to.
type Entity int

const (
	EntityTag Entity = iota
	EntityTransaction
	EntityProduct
)

// Scope restricts a read to one user's records. An empty UserID with All
// set means no restriction.
type Scope struct {
	All    bool
	UserID string
}

// ScopeFor is the single place that decides which records p may read.
// Tags are public provenance and always unrestricted; a trace reads products
// through the tag, never through this scope. Ledger entries and product
// listings are restricted to the caller's own unless the caller is an admin;
// anonymous callers and visitors have no such scope at all.
func ScopeFor(p Principal, e Entity) (Scope, error) {
	switch e {
	case EntityTag:
		return Scope{All: true}, nil
	case EntityTransaction, EntityProduct:
		if p.IsAdmin() {
			return Scope{All: true}, nil
		}
		if !p.Authenticated() || p.Role == RoleVisitor {
			return Scope{}, Reject(ErrUnauthorized, ReasonRoleMismatch, "listing requires a signed-in stage user")
		}
		return Scope{UserID: p.UserID}, nil
	}
	return Scope{}, Reject(ErrUnauthorized, ReasonRoleMismatch, "unknown entity")
}

// Authorize checks that p may act as role. Admins may act as any role.
func Authorize(p Principal, role Role) error {
	if !p.Authenticated() {
		return Reject(ErrUnauthorized, ReasonRoleMismatch, "sign-in required to act as %s", role)
	}
	if p.IsAdmin() || p.Role == role {
		return nil
	}
	return Reject(ErrUnauthorized, ReasonRoleMismatch, "role %s may not act as %s", p.Role, role)
}
