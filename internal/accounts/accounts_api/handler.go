package accounts_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	accounts "event-ticketing/internal/accounts/service"
	"event-ticketing/internal/apperr"
	"event-ticketing/internal/auth"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/uploads"
	"event-ticketing/internal/utils"
)

// TicketLister feeds the purchase history shown on the profile.
type TicketLister interface {
	History(ctx context.Context, userID string) ([]*models.Ticket, error)
}

type Handler struct {
	Accounts *accounts.Service
	Auth     *auth.Authenticator
	Tickets  TicketLister
	Uploads  *uploads.Store
	Logger   *logger.Logger
}

func NewHandler(svc *accounts.Service, authenticator *auth.Authenticator, tickets TicketLister, store *uploads.Store, log *logger.Logger) *Handler {
	return &Handler{Accounts: svc, Auth: authenticator, Tickets: tickets, Uploads: store, Logger: log}
}

// Routes mounts the account, organizer-request and admin endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(h.Auth.RequireLogin).Post("/logout", h.Logout)
		r.With(h.Auth.RequireLogin).Get("/profile", h.Profile)
	})

	r.With(h.Auth.RequireLogin).Post("/api/organizer-requests", h.SubmitOrganizerRequest)

	r.Route("/admin", func(r chi.Router) {
		r.With(h.Auth.RequireCapability(models.CapReviewOrganizerRequests)).Get("/organizer-requests", h.ListPending)
		r.With(h.Auth.RequireCapability(models.CapReviewOrganizerRequests)).Post("/organizer-requests/{userId}/approve", h.Approve)
		r.With(h.Auth.RequireCapability(models.CapReviewOrganizerRequests)).Post("/organizer-requests/{userId}/reject", h.Reject)
		r.With(h.Auth.RequireCapability(models.CapReviewOrganizerRequests)).Get("/organizer-requests/{userId}/documents/{side}", h.IdentityDocument)
		r.With(h.Auth.RequireCapability(models.CapListUsers)).Get("/users", h.ListUsers)
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in accounts.RegisterInput
	if auth.IsJSONBody(r) {
		if err := utils.DecodeJSON(r, &in); err != nil {
			h.Auth.Fail(w, r, err, "/auth/register")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.Auth.Fail(w, r, apperr.ErrInvalidRequest, "/auth/register")
			return
		}
		in = accounts.RegisterInput{
			Username:  r.PostForm.Get("username"),
			Email:     r.PostForm.Get("email"),
			Password:  r.PostForm.Get("password"),
			FirstName: r.PostForm.Get("first_name"),
			LastName:  r.PostForm.Get("last_name"),
			Phone:     r.PostForm.Get("phone"),
		}
	}

	user, err := h.Accounts.Register(r.Context(), in)
	if err != nil {
		h.Auth.Fail(w, r, err, "/auth/register")
		return
	}
	h.Auth.Succeed(w, r, http.StatusCreated, "Your account has been created, you can now log in.", user, auth.LoginPath)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if auth.IsJSONBody(r) {
		if err := utils.DecodeJSON(r, &in); err != nil {
			h.Auth.Fail(w, r, err, auth.LoginPath)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.Auth.Fail(w, r, apperr.ErrInvalidRequest, auth.LoginPath)
			return
		}
		in.Login = r.PostForm.Get("login")
		if in.Login == "" {
			in.Login = r.PostForm.Get("email")
		}
		in.Password = r.PostForm.Get("password")
	}

	user, err := h.Accounts.Authenticate(r.Context(), in.Login, in.Password)
	if err != nil {
		h.Auth.Fail(w, r, err, auth.LoginPath)
		return
	}

	sess, err := h.Auth.StartSession(w, r, user)
	if err != nil {
		h.Auth.Fail(w, r, err, auth.LoginPath)
		return
	}
	r = r.WithContext(auth.WithSession(auth.WithUser(r.Context(), user), sess))

	token, expiresAt, err := h.Auth.Tokens.Issue(user)
	if err != nil {
		h.Auth.Fail(w, r, err, auth.LoginPath)
		return
	}

	h.Logger.LogSecurity("LOGIN", fmt.Sprintf("user %s logged in", user.ID))
	h.Auth.Succeed(w, r, http.StatusOK, fmt.Sprintf("Welcome back, %s!", user.FullName()),
		loginResponse{User: user, Token: token, ExpiresAt: expiresAt}, "/")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.EndSession(w, r); err != nil {
		h.Auth.Fail(w, r, err, "/")
		return
	}
	if auth.WantsAPI(r) {
		utils.WriteSuccess(w, http.StatusOK, "You have been logged out.", nil)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type profileResponse struct {
	User    *models.User     `json:"user"`
	Tickets []*models.Ticket `json:"tickets"`
	Flashes []auth.Flash     `json:"flashes"`
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	tickets, err := h.Tickets.History(r.Context(), user.ID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", profileResponse{
		User:    user,
		Tickets: tickets,
		Flashes: h.Auth.PopFlashes(r),
	})
}

// SubmitOrganizerRequest takes a multipart form with phone, identity_type, message and the recto
// and verso scans of the identity document.
func (h *Handler) SubmitOrganizerRequest(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	const back = "/auth/profile"

	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.Auth.Fail(w, r, apperr.ErrInvalidRequest.With("invalid multipart form"), back)
		return
	}

	in := accounts.OrganizerRequestInput{
		Message:      r.FormValue("message"),
		Phone:        r.FormValue("phone"),
		IdentityType: r.FormValue("identity_type"),
	}

	var saved []string
	cleanup := func() {
		for _, p := range saved {
			if err := h.Uploads.Delete(p); err != nil {
				h.Logger.Warn("UPLOADS", fmt.Sprintf("Failed to remove %s: %v", p, err))
			}
		}
	}

	for _, side := range []struct {
		field string
		dst   *string
	}{{"recto", &in.RectoPath}, {"verso", &in.VersoPath}} {
		if r.MultipartForm == nil || len(r.MultipartForm.File[side.field]) == 0 {
			continue
		}
		ref, err := h.Uploads.Save(r.MultipartForm.File[side.field][0], uploads.IdentityDocument)
		if err != nil {
			cleanup()
			h.Auth.Fail(w, r, err, back)
			return
		}
		saved = append(saved, ref)
		*side.dst = ref
	}

	updated, err := h.Accounts.RequestOrganizer(r.Context(), user, in)
	if err != nil {
		cleanup()
		h.Auth.Fail(w, r, err, back)
		return
	}
	h.Auth.Succeed(w, r, http.StatusCreated,
		"Your request has been sent. It will be reviewed by our administrators.", updated.OrganizerRequest, back)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	users, err := h.Accounts.ListPending(r.Context(), auth.CurrentUser(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", users)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Accounts.ListUsers(r.Context(), auth.CurrentUser(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", users)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	const back = "/admin/organizer-requests"
	user, err := h.Accounts.Approve(r.Context(), auth.CurrentUser(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		h.Auth.Fail(w, r, err, back)
		return
	}
	h.Auth.Succeed(w, r, http.StatusOK, fmt.Sprintf("%s is now an organizer.", user.FullName()), user, back)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	const back = "/admin/organizer-requests"
	user, err := h.Accounts.Reject(r.Context(), auth.CurrentUser(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		h.Auth.Fail(w, r, err, back)
		return
	}
	h.Auth.Succeed(w, r, http.StatusOK, fmt.Sprintf("The request of %s has been rejected.", user.FullName()), user, back)
}

// IdentityDocument streams one side of a requester's identity document to a reviewer.
func (h *Handler) IdentityDocument(w http.ResponseWriter, r *http.Request) {
	ref, err := h.Accounts.IdentityDocument(r.Context(), auth.CurrentUser(r.Context()), chi.URLParam(r, "userId"), chi.URLParam(r, "side"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	file, err := h.Uploads.PrivatePath(ref)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if _, err := os.Stat(file); err != nil {
		h.Logger.Error("UPLOADS", fmt.Sprintf("Identity document %s is missing: %v", ref, err))
		utils.WriteError(w, apperr.ErrDocumentNotFound)
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeFile(w, r, file)
}
