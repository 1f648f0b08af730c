package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/testutil"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key, eventType string, data any) error {
	args := m.Called(ctx, topic, key, eventType, data)
	return args.Error(0)
}

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *MockPublisher) {
	db := testutil.NewDB(t)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return NewService(db, pub, config.TopicConfig{OrganizerRequests: "requests"}, clock.NewFixed(now), logger.Nop()), pub
}

func register(t *testing.T, svc *Service, username string) *models.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@Example.com",
		Password: "correct horse",
		Phone:    "+221 77 123 45 67",
	})
	require.NoError(t, err)
	return u
}

func validRequest() OrganizerRequestInput {
	return OrganizerRequestInput{
		Message:      "I run a venue",
		Phone:        "77 123 45 67",
		IdentityType: "CNI",
		RectoPath:    "identity/recto.png",
		VersoPath:    "identity/verso.png",
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user := register(t, svc, "awa")
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "awa@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.PasswordHash)
	assert.Equal(t, models.RequestNone, user.OrganizerRequest.Status)

	byEmail, err := svc.Authenticate(ctx, "AWA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byName, err := svc.Authenticate(ctx, "awa", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = svc.Authenticate(ctx, "awa", "wrong password")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = svc.Register(ctx, RegisterInput{Username: "awa", Email: "other@example.com", Password: "12345678"})
	assert.ErrorIs(t, err, apperr.ErrAccountExists)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
		code string
	}{
		{"short password", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short"}, "invalid_password"},
		{"bad email", RegisterInput{Username: "bob", Email: "bob", Password: "12345678"}, "invalid_email"},
		{"missing username", RegisterInput{Email: "bob@example.com", Password: "12345678"}, "invalid_username"},
		{"at sign in username", RegisterInput{Username: "b@b", Email: "bob@example.com", Password: "12345678"}, "invalid_username"},
		{"short phone", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "12345678", Phone: "1234"}, "invalid_phone"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newService(t)
			_, err := svc.Register(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.code, apperr.From(err).Code)
		})
	}
}

func TestCreateAdmin(t *testing.T) {
	svc, _ := newService(t)
	in := RegisterInput{Username: "root", Email: "root@example.com", Password: "12345678"}

	_, err := svc.CreateAdmin(context.Background(), in, models.RoleOrganizer)
	assert.Equal(t, "invalid_role", apperr.From(err).Code)
	_, err = svc.CreateAdmin(context.Background(), in, models.Role(9))
	assert.Equal(t, "invalid_role", apperr.From(err).Code)

	admin, err := svc.CreateAdmin(context.Background(), in, models.RoleSuperAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, admin.Role)
}

func TestRequestOrganizer(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()
	user := register(t, svc, "moussa")

	updated, err := svc.RequestOrganizer(ctx, user, validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, updated.OrganizerRequest.Status)
	assert.Equal(t, models.IdentityCNI, updated.OrganizerRequest.IdentityType)
	require.NotNil(t, updated.OrganizerRequest.RequestedAt)
	assert.True(t, now.Equal(*updated.OrganizerRequest.RequestedAt))
	assert.Equal(t, models.RoleUser, updated.Role, "submitting never changes the role")
	pub.AssertCalled(t, "Publish", mock.Anything, "requests", user.ID, "organizer_request.submitted", mock.Anything)

	// A stale actor without the pending status still hits the conditional update.
	_, err = svc.RequestOrganizer(ctx, user, validRequest())
	assert.ErrorIs(t, err, apperr.ErrRequestPending)
	_, err = svc.RequestOrganizer(ctx, updated, validRequest())
	assert.ErrorIs(t, err, apperr.ErrRequestPending)
}

func TestRequestOrganizer_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		role    models.Role
		mutate  func(in *OrganizerRequestInput)
		wantErr error
	}{
		{"organizer cannot ask", models.RoleOrganizer, func(*OrganizerRequestInput) {}, apperr.ErrRequestNotAllowed},
		{"admin cannot ask", models.RoleAdmin, func(*OrganizerRequestInput) {}, apperr.ErrRequestNotAllowed},
		{"short phone", models.RoleUser, func(in *OrganizerRequestInput) { in.Phone = "77-12-34" }, apperr.ErrInvalidPhone},
		{"unknown identity", models.RoleUser, func(in *OrganizerRequestInput) { in.IdentityType = "Visa" }, apperr.ErrInvalidIdentityType},
		{"missing verso", models.RoleUser, func(in *OrganizerRequestInput) { in.VersoPath = "" }, apperr.ErrMissingDocuments},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newService(t)
			actor := testutil.CreateUser(t, svc.DB.Bun, tc.role)
			in := validRequest()
			tc.mutate(&in)

			_, err := svc.RequestOrganizer(context.Background(), actor, in)
			assert.ErrorIs(t, err, tc.wantErr)

			stored, err := svc.GetByID(context.Background(), actor.ID)
			require.NoError(t, err)
			assert.NotEqual(t, models.RequestPending, stored.OrganizerRequest.Status)
		})
	}
}

func TestApproveAndReject(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, svc.DB.Bun, models.RoleAdmin)
	organizer := testutil.CreateUser(t, svc.DB.Bun, models.RoleOrganizer)

	applicant := register(t, svc, "fatou")
	_, err := svc.Approve(ctx, admin, applicant.ID)
	assert.ErrorIs(t, err, apperr.ErrNoPendingRequest)

	_, err = svc.RequestOrganizer(ctx, applicant, validRequest())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, organizer, applicant.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	pending, err := svc.ListPending(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, applicant.ID, pending[0].ID)

	approved, err := svc.Approve(ctx, admin, applicant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrganizer, approved.Role)
	assert.Equal(t, models.RequestApproved, approved.OrganizerRequest.Status)
	pub.AssertCalled(t, "Publish", mock.Anything, "requests", applicant.ID, "organizer_request.approved", mock.Anything)

	_, err = svc.Reject(ctx, admin, applicant.ID)
	assert.ErrorIs(t, err, apperr.ErrNoPendingRequest, "a resolved request cannot be resolved again")

	other := register(t, svc, "ibrahima")
	_, err = svc.RequestOrganizer(ctx, other, validRequest())
	require.NoError(t, err)
	rejected, err := svc.Reject(ctx, admin, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, rejected.Role)
	assert.Equal(t, models.RequestRejected, rejected.OrganizerRequest.Status)

	// A rejected user may try again.
	_, err = svc.RequestOrganizer(ctx, rejected, validRequest())
	assert.NoError(t, err)

	_, err = svc.Approve(ctx, admin, "missing")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestIdentityDocument(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	user := register(t, svc, "awa")
	_, err := svc.RequestOrganizer(ctx, user, validRequest())
	require.NoError(t, err)
	admin, err := svc.CreateAdmin(ctx, RegisterInput{Username: "root", Email: "root@example.com", Password: "12345678"}, models.RoleAdmin)
	require.NoError(t, err)

	ref, err := svc.IdentityDocument(ctx, admin, user.ID, "verso")
	require.NoError(t, err)
	assert.Equal(t, "identity/verso.png", ref)

	_, err = svc.IdentityDocument(ctx, user, user.ID, "verso")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.IdentityDocument(ctx, admin, user.ID, "back")
	assert.ErrorIs(t, err, apperr.ErrDocumentNotFound)
	_, err = svc.IdentityDocument(ctx, admin, admin.ID, "recto")
	assert.ErrorIs(t, err, apperr.ErrDocumentNotFound)
}

func TestListUsers(t *testing.T) {
	svc, _ := newService(t)
	admin := testutil.CreateUser(t, svc.DB.Bun, models.RoleAdmin)
	register(t, svc, "khady")

	users, err := svc.ListUsers(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	buyer := testutil.CreateUser(t, svc.DB.Bun, models.RoleUser)
	_, err = svc.ListUsers(context.Background(), buyer)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
