package domain

import "strings"

// Role is the access-control category of a session.
type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleVendor    Role = "vendor"
	RoleAdmin     Role = "admin"
)

// DefaultRole is assigned when no source gives a definitive answer.
const DefaultRole = RoleOrganizer

// landingPaths maps each role to its default view.
var landingPaths = map[Role]string{
	RoleOrganizer: "/dashboard",
	RoleVendor:    "/vendor/dashboard",
	RoleAdmin:     "/admin",
}

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := landingPaths[r]; !ok {
		return "", false
	}
	return r, true
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := landingPaths[r]
	return ok
}

// LandingPath returns the view a session holding r is sent to by default.
// Unknown roles land on the organizer view.
func (r Role) LandingPath() string {
	if p, ok := landingPaths[r]; ok {
		return p
	}
	return landingPaths[DefaultRole]
}

func (r Role) String() string { return string(r) }
