package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Ordering(t *testing.T) {
	assert.True(t, RoleUser < RoleOrganizer)
	assert.True(t, RoleOrganizer < RoleAdmin)
	assert.True(t, RoleAdmin < RoleSuperAdmin)

	assert.True(t, RoleAdmin.AtLeast(RoleOrganizer))
	assert.True(t, RoleOrganizer.AtLeast(RoleOrganizer))
	assert.False(t, RoleUser.AtLeast(RoleOrganizer))
	assert.False(t, Role(0).AtLeast(RoleUser))
}

func TestRole_Capabilities(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleUser, CapBuyTickets, true},
		{RoleUser, CapRequestOrganizer, true},
		{RoleUser, CapManageEvents, false},
		{RoleOrganizer, CapRequestOrganizer, false},
		{RoleOrganizer, CapManageEvents, true},
		{RoleOrganizer, CapReviewOrganizerRequests, false},
		{RoleAdmin, CapReviewOrganizerRequests, true},
		{RoleAdmin, CapListUsers, true},
		{RoleOrganizer, CapListUsers, false},
		{RoleSuperAdmin, CapReviewOrganizerRequests, true},
		{Role(42), CapBuyTickets, false},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Can(tt.cap))
		})
	}
}

func TestUser_CanRequestOrganizer(t *testing.T) {
	tests := []struct {
		name   string
		role   Role
		status OrganizerRequestStatus
		want   bool
	}{
		{"fresh user", RoleUser, RequestNone, true},
		{"rejected user asks again", RoleUser, RequestRejected, true},
		{"pending user", RoleUser, RequestPending, false},
		{"organizer", RoleOrganizer, RequestApproved, false},
		{"admin", RoleAdmin, RequestNone, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := &User{Role: tc.role, OrganizerRequest: OrganizerRequest{Status: tc.status}}
			assert.Equal(t, tc.want, u.CanRequestOrganizer())
		})
	}
}

func TestRole_TextAndSQL(t *testing.T) {
	r, err := ParseRole(" Super_Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, r)

	_, err = ParseRole("root")
	assert.Error(t, err)

	v, err := RoleOrganizer.Value()
	require.NoError(t, err)
	assert.Equal(t, "organizer", v)

	var scanned Role
	require.NoError(t, scanned.Scan([]byte("admin")))
	assert.Equal(t, RoleAdmin, scanned)
	assert.Error(t, scanned.Scan(12))

	b, err := json.Marshal(struct {
		Role Role `json:"role"`
	}{RoleOrganizer})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"organizer"}`, string(b))
}
