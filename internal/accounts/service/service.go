package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	accountsdb "event-ticketing/internal/accounts/db"
	"event-ticketing/internal/apperr"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/metrics"
	"event-ticketing/internal/models"
	"event-ticketing/internal/utils"
)

const minPhoneDigits = 8

type RegisterInput struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email,max=120"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=50"`
	LastName  string `json:"last_name" validate:"max=50"`
	Phone     string `json:"phone" validate:"max=20"`
}

type OrganizerRequestInput struct {
	Message      string `json:"message" validate:"max=2000"`
	Phone        string `json:"phone" validate:"required,max=20"`
	IdentityType string `json:"identity_type" validate:"required"`
	RectoPath    string `json:"-"`
	VersoPath    string `json:"-"`
}

type Service struct {
	DB        *accountsdb.DB
	Publisher kafka.Publisher
	Topics    config.TopicConfig
	Clock     clock.Clock
	Logger    *logger.Logger
}

func NewService(db *bun.DB, publisher kafka.Publisher, topics config.TopicConfig, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		DB:        &accountsdb.DB{Bun: db},
		Publisher: publisher,
		Topics:    topics,
		Clock:     clk,
		Logger:    log,
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// Register creates a plain user account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.create(ctx, in, models.RoleUser)
}

// CreateAdmin creates an administrator account; used by the create-admin command.
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput, role models.Role) (*models.User, error) {
	if !role.AtLeast(models.RoleAdmin) {
		return nil, apperr.Validation("invalid_role", "role must be admin or super_admin")
	}
	return s.create(ctx, in, role)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role models.Role) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := utils.Validate(in); err != nil {
		return nil, err
	}
	if strings.Contains(in.Username, "@") {
		return nil, apperr.Validation("invalid_username", "username cannot contain @")
	}
	if in.Phone != "" && countDigits(in.Phone) < minPhoneDigits {
		return nil, apperr.ErrInvalidPhone
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:               uuid.NewString(),
		Username:         in.Username,
		Email:            in.Email,
		PasswordHash:     string(hash),
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		Phone:            strings.TrimSpace(in.Phone),
		Role:             role,
		OrganizerRequest: models.OrganizerRequest{Status: models.RequestNone},
		CreatedAt:        s.Clock.Now(),
	}
	if err := s.DB.InsertUser(ctx, user); err != nil {
		return nil, err
	}

	s.Logger.Info("ACCOUNTS", fmt.Sprintf("Account %s (%s) created with role %s", user.ID, user.Username, role))
	return user, nil
}

// Authenticate checks a login (e-mail or username) and password pair.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	user, err := s.DB.GetByLogin(ctx, login)
	if errors.Is(err, apperr.ErrUserNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.Logger.LogSecurity("LOGIN_FAILED", fmt.Sprintf("bad password for user %s", user.ID))
		return nil, apperr.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.DB.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.DB.GetByEmail(ctx, email)
}

// RequestOrganizer files an organizer access request for a plain user.
func (s *Service) RequestOrganizer(ctx context.Context, actor *models.User, in OrganizerRequestInput) (*models.User, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthorized
	}
	if !actor.CanRequestOrganizer() {
		if actor.Role.Can(models.CapRequestOrganizer) {
			return nil, apperr.ErrRequestPending
		}
		return nil, apperr.ErrRequestNotAllowed
	}
	if err := utils.Validate(in); err != nil {
		return nil, err
	}
	if countDigits(in.Phone) < minPhoneDigits {
		return nil, apperr.ErrInvalidPhone
	}
	identity := models.IdentityType(strings.TrimSpace(in.IdentityType))
	if !identity.Valid() {
		return nil, apperr.ErrInvalidIdentityType
	}
	if in.RectoPath == "" || in.VersoPath == "" {
		return nil, apperr.ErrMissingDocuments
	}

	now := s.Clock.Now()
	ok, err := s.DB.SubmitOrganizerRequest(ctx, actor.ID, models.OrganizerRequest{
		Status:       models.RequestPending,
		RequestedAt:  &now,
		Message:      strings.TrimSpace(in.Message),
		Phone:        strings.TrimSpace(in.Phone),
		IdentityType: identity,
		RectoPath:    in.RectoPath,
		VersoPath:    in.VersoPath,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another request won the race or the role changed meanwhile.
		current, err := s.DB.GetByID(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if current.OrganizerRequest.Status == models.RequestPending {
			return nil, apperr.ErrRequestPending
		}
		return nil, apperr.ErrRequestNotAllowed
	}

	user, err := s.DB.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	metrics.OrganizerRequests.WithLabelValues("submitted").Inc()
	s.Logger.Info("ACCOUNTS", fmt.Sprintf("Organizer request submitted by %s", actor.ID))
	s.publish(ctx, user.ID, "organizer_request.submitted", user)
	return user, nil
}

func (s *Service) Approve(ctx context.Context, actor *models.User, userID string) (*models.User, error) {
	return s.resolve(ctx, actor, userID, models.RequestApproved)
}

func (s *Service) Reject(ctx context.Context, actor *models.User, userID string) (*models.User, error) {
	return s.resolve(ctx, actor, userID, models.RequestRejected)
}

func (s *Service) resolve(ctx context.Context, actor *models.User, userID string, status models.OrganizerRequestStatus) (*models.User, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthorized
	}
	if !actor.Role.Can(models.CapReviewOrganizerRequests) {
		return nil, apperr.ErrForbidden
	}

	var user *models.User
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.DB.ResolveOrganizerRequest(ctx, tx, userID, status, s.Clock.Now())
		if err != nil {
			return err
		}
		user, err = s.DB.GetUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrNoPendingRequest
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := "approved"
	if status == models.RequestRejected {
		action = "rejected"
	}
	metrics.OrganizerRequests.WithLabelValues(action).Inc()
	s.Logger.Info("ACCOUNTS", fmt.Sprintf("Organizer request of %s %s by %s", userID, action, actor.ID))
	s.publish(ctx, userID, "organizer_request."+action, user)
	return user, nil
}

// IdentityDocument returns the stored reference of one side ("recto" or "verso") of the identity
// document attached to a user's organizer request.
func (s *Service) IdentityDocument(ctx context.Context, actor *models.User, userID, side string) (string, error) {
	if actor == nil || !actor.Role.Can(models.CapReviewOrganizerRequests) {
		return "", apperr.ErrForbidden
	}
	user, err := s.DB.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	var ref string
	switch side {
	case "recto":
		ref = user.OrganizerRequest.RectoPath
	case "verso":
		ref = user.OrganizerRequest.VersoPath
	}
	if ref == "" {
		return "", apperr.ErrDocumentNotFound
	}
	s.Logger.LogSecurity("IDENTITY_DOCUMENT_VIEWED", fmt.Sprintf("%s of user %s viewed by %s", side, userID, actor.ID))
	return ref, nil
}

func (s *Service) ListPending(ctx context.Context, actor *models.User) ([]*models.User, error) {
	if actor == nil || !actor.Role.Can(models.CapReviewOrganizerRequests) {
		return nil, apperr.ErrForbidden
	}
	return s.DB.ListPendingRequests(ctx)
}

func (s *Service) ListUsers(ctx context.Context, actor *models.User) ([]*models.User, error) {
	if actor == nil || !actor.Role.Can(models.CapListUsers) {
		return nil, apperr.ErrForbidden
	}
	return s.DB.ListUsers(ctx)
}

func (s *Service) publish(ctx context.Context, key, eventType string, data any) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, s.Topics.OrganizerRequests, key, eventType, data); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, key, err))
	}
}
