package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is ordered: RoleUser < RoleOrganizer < RoleAdmin < RoleSuperAdmin.
type Role int

const (
	RoleUser Role = iota + 1
	RoleOrganizer
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleUser:       "user",
	RoleOrganizer:  "organizer",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r sits at or above min in the hierarchy.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r >= min
}

// Capability names an action gated by role.
type Capability int

const (
	CapBuyTickets Capability = iota + 1
	CapRequestOrganizer
	CapManageEvents
	CapViewDashboard
	CapReviewOrganizerRequests
	CapListUsers
)

var capabilities = map[Role][]Capability{
	RoleUser:       {CapBuyTickets, CapRequestOrganizer},
	RoleOrganizer:  {CapBuyTickets, CapManageEvents, CapViewDashboard},
	RoleAdmin:      {CapBuyTickets, CapManageEvents, CapViewDashboard, CapReviewOrganizerRequests, CapListUsers},
	RoleSuperAdmin: {CapBuyTickets, CapManageEvents, CapViewDashboard, CapReviewOrganizerRequests, CapListUsers},
}

var capabilityNames = map[Capability]string{
	CapBuyTickets:              "buy_tickets",
	CapRequestOrganizer:        "request_organizer",
	CapManageEvents:            "manage_events",
	CapViewDashboard:           "view_dashboard",
	CapReviewOrganizerRequests: "review_organizer_requests",
	CapListUsers:               "list_users",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

func (r Role) Can(c Capability) bool {
	for _, have := range capabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the role by name so the column stays readable.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return r.String(), nil
}

func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	case nil:
		*r = RoleUser
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
}
