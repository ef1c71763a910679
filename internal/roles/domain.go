package roles

import "fmt"

// Role identifies a party's function in the approval chain.
type Role string

const (
	Initiator Role = "initiator"
	Head      Role = "head"
	Finance   Role = "finance"
	Payment   Role = "payment"
)

// All lists the roles in notification order.
var All = []Role{Initiator, Head, Finance, Payment}

// actingOrder decides which role a party acts under when it belongs to several.
var actingOrder = []Role{Head, Finance, Payment, Initiator}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case Initiator, Head, Finance, Payment:
		return true
	}
	return false
}

// CanDecide reports whether the role takes part in approval decisions.
func (r Role) CanDecide() bool {
	return r == Head || r == Finance || r == Payment
}

func (r Role) String() string {
	return string(r)
}

// Parse converts a raw value into a Role.
func Parse(raw string) (Role, error) {
	role := Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("roles: unknown role %q", raw)
	}
	return role, nil
}
