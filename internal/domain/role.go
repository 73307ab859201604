package domain

import "fmt"

// Role is the closed set of principal roles.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// ParseRole returns the Role named by s, or an error for anything outside
// the enumeration.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleRank[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants every privilege of min. A superadmin
// satisfies admin-only checks.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && roleRank[r] >= roleRank[min]
}

// AnyOf reports whether r satisfies at least one of the allowed roles.
// An empty allow list admits every valid role.
func (r Role) AnyOf(allowed ...Role) bool {
	if len(allowed) == 0 {
		return r.Valid()
	}
	for _, a := range allowed {
		if r.AtLeast(a) {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
