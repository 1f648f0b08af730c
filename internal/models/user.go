package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrganizerRequestStatus string

const (
	RequestNone     OrganizerRequestStatus = "none"
	RequestPending  OrganizerRequestStatus = "pending"
	RequestApproved OrganizerRequestStatus = "approved"
	RequestRejected OrganizerRequestStatus = "rejected"
)

type IdentityType string

const (
	IdentityCNI       IdentityType = "CNI"
	IdentityPassport  IdentityType = "Passeport"
	IdentityDriverLic IdentityType = "Permis"
)

func (t IdentityType) Valid() bool {
	switch t {
	case IdentityCNI, IdentityPassport, IdentityDriverLic:
		return true
	}
	return false
}

// OrganizerRequest is stored inline on the users row with an organizer_request_ prefix.
type OrganizerRequest struct {
	Status       OrganizerRequestStatus `bun:"status,notnull,default:'none'" json:"status"`
	RequestedAt  *time.Time             `bun:"date" json:"requested_at,omitempty"`
	Message      string                 `bun:"message" json:"message,omitempty"`
	Phone        string                 `bun:"phone" json:"phone,omitempty"`
	IdentityType IdentityType           `bun:"identity_type" json:"identity_type,omitempty"`
	RectoPath    string                 `bun:"recto" json:"recto_path,omitempty"`
	VersoPath    string                 `bun:"verso" json:"verso_path,omitempty"`
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID               string           `bun:"id,pk" json:"id"`
	Username         string           `bun:"username,unique,notnull" json:"username"`
	Email            string           `bun:"email,unique,notnull" json:"email"`
	PasswordHash     string           `bun:"password_hash,notnull" json:"-"`
	FirstName        string           `bun:"first_name" json:"first_name,omitempty"`
	LastName         string           `bun:"last_name" json:"last_name,omitempty"`
	Phone            string           `bun:"phone" json:"phone,omitempty"`
	Role             Role             `bun:"role,type:varchar(20),notnull" json:"role"`
	OrganizerRequest OrganizerRequest `bun:"embed:organizer_request_" json:"organizer_request"`
	CreatedAt        time.Time        `bun:"created_at,notnull" json:"created_at"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// CanRequestOrganizer holds for plain users without a request under review.
func (u *User) CanRequestOrganizer() bool {
	return u.Role.Can(CapRequestOrganizer) && u.OrganizerRequest.Status != RequestPending
}
