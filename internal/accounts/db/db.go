package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/database"
	"event-ticketing/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertUser(ctx context.Context, u *models.User) error {
	_, err := d.Bun.NewInsert().Model(u).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return apperr.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (d *DB) getUser(ctx context.Context, db bun.IDB, where string, arg any) (*models.User, error) {
	u := new(models.User)
	err := db.NewSelect().Model(u).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.User, error) {
	return d.getUser(ctx, d.Bun, "id = ?", id)
}

func (d *DB) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.getUser(ctx, d.Bun, "LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByLogin accepts either an e-mail address or a username.
func (d *DB) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return d.GetByEmail(ctx, login)
	}
	return d.getUser(ctx, d.Bun, "username = ?", login)
}

// SubmitOrganizerRequest stores the request only for a plain user without one under review.
func (d *DB) SubmitOrganizerRequest(ctx context.Context, userID string, req models.OrganizerRequest) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("organizer_request_status = ?", models.RequestPending).
		Set("organizer_request_date = ?", req.RequestedAt).
		Set("organizer_request_message = ?", req.Message).
		Set("organizer_request_phone = ?", req.Phone).
		Set("organizer_request_identity_type = ?", req.IdentityType).
		Set("organizer_request_recto = ?", req.RectoPath).
		Set("organizer_request_verso = ?", req.VersoPath).
		Where("id = ?", userID).
		Where("role = ?", models.RoleUser).
		Where("organizer_request_status <> ?", models.RequestPending).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("submit organizer request: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ResolveOrganizerRequest moves a pending request to status. Approval also grants the organizer role.
func (d *DB) ResolveOrganizerRequest(ctx context.Context, db bun.IDB, userID string, status models.OrganizerRequestStatus, at time.Time) (bool, error) {
	q := db.NewUpdate().
		Model((*models.User)(nil)).
		Set("organizer_request_status = ?", status).
		Set("organizer_request_date = ?", at).
		Where("id = ?", userID).
		Where("organizer_request_status = ?", models.RequestPending)
	if status == models.RequestApproved {
		q = q.Set("role = ?", models.RoleOrganizer).Where("role = ?", models.RoleUser)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("resolve organizer request: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (d *DB) GetUserTx(ctx context.Context, db bun.IDB, id string) (*models.User, error) {
	return d.getUser(ctx, db, "id = ?", id)
}

func (d *DB) ListPendingRequests(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := d.Bun.NewSelect().
		Model(&users).
		Where("organizer_request_status = ?", models.RequestPending).
		Order("organizer_request_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return users, nil
}

func (d *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := d.Bun.NewSelect().Model(&users).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
