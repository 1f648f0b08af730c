package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/config"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/utils"
)

type contextKey string

const (
	userCtxKey    contextKey = "user"
	sessionCtxKey contextKey = "session"
	bearerCtxKey  contextKey = "bearer"
)

const LoginPath = "/auth/login"

// UserLoader resolves the principal behind a session or token.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type Authenticator struct {
	Sessions *SessionStore
	Tokens   *TokenIssuer
	OIDC     *OIDCVerifier
	Users    UserLoader
	Cookie   config.AuthConfig
	Logger   *logger.Logger
}

func NewAuthenticator(sessions *SessionStore, tokens *TokenIssuer, oidcVerifier *OIDCVerifier, users UserLoader, cfg config.AuthConfig, log *logger.Logger) *Authenticator {
	return &Authenticator{
		Sessions: sessions,
		Tokens:   tokens,
		OIDC:     oidcVerifier,
		Users:    users,
		Cookie:   cfg,
		Logger:   log,
	}
}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userCtxKey).(*models.User)
	return u
}

// WithSession makes sess the caller's session for the rest of the request, so flashes queued after
// a login land on the rotated id.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func CurrentSession(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionCtxKey).(*Session)
	return s
}

func isBearer(ctx context.Context) bool {
	b, _ := ctx.Value(bearerCtxKey).(bool)
	return b
}

// Authenticate resolves the caller from a bearer token or the session cookie. Anonymous requests
// pass through; a bad bearer token is rejected outright.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, err := ExtractTokenFromRequest(r)
		if err != nil {
			utils.WriteError(w, apperr.ErrUnauthorized.With(err.Error()))
			return
		}
		if token != "" {
			user, err := a.userFromToken(ctx, token)
			if err != nil {
				a.Logger.LogSecurity("BEARER_REJECTED", fmt.Sprintf("%s: %v", r.RemoteAddr, err))
				utils.WriteError(w, apperr.ErrUnauthorized.With("invalid or expired token"))
				return
			}
			ctx = context.WithValue(WithUser(ctx, user), bearerCtxKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if cookie, err := r.Cookie(a.Cookie.CookieName); err == nil {
			sess, err := a.Sessions.Get(ctx, cookie.Value)
			switch {
			case err == nil:
				ctx = WithSession(ctx, sess)
				if sess.Authenticated() {
					if user, err := a.Users.GetByID(ctx, sess.UserID); err == nil {
						ctx = WithUser(ctx, user)
					}
				}
			case !errors.Is(err, ErrSessionNotFound):
				a.Logger.Error("AUTH", fmt.Sprintf("Session lookup failed: %v", err))
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) userFromToken(ctx context.Context, token string) (*models.User, error) {
	claims, jwtErr := a.Tokens.Parse(token)
	if jwtErr == nil {
		return a.Users.GetByID(ctx, claims.Subject)
	}
	if a.OIDC == nil {
		return nil, jwtErr
	}
	email, err := a.OIDC.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return a.Users.GetByEmail(ctx, email)
}

// WantsAPI reports whether failures should be answered with JSON instead of a redirect.
func WantsAPI(r *http.Request) bool {
	return isBearer(r.Context()) || utils.WantsJSON(r)
}

// StartSession logs user in on a fresh session id and sets the cookie.
func (a *Authenticator) StartSession(w http.ResponseWriter, r *http.Request, user *models.User) (*Session, error) {
	sess, err := a.Sessions.Login(r.Context(), CurrentSession(r.Context()), user.ID)
	if err != nil {
		return nil, err
	}
	a.setCookie(w, sess)
	return sess, nil
}

func (a *Authenticator) EndSession(w http.ResponseWriter, r *http.Request) error {
	if sess := CurrentSession(r.Context()); sess != nil {
		if err := a.Sessions.Destroy(r.Context(), sess.ID); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.Cookie.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.Cookie.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (a *Authenticator) setCookie(w http.ResponseWriter, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.Cookie.CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   a.Cookie.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Flash queues a message on the caller's session, opening an anonymous one when needed.
func (a *Authenticator) Flash(w http.ResponseWriter, r *http.Request, kind FlashKind, message string) {
	sess := CurrentSession(r.Context())
	if sess == nil {
		var err error
		if sess, err = a.Sessions.Create(r.Context(), ""); err != nil {
			a.Logger.Error("AUTH", fmt.Sprintf("Failed to open session for flash: %v", err))
			return
		}
		a.setCookie(w, sess)
	}
	if err := a.Sessions.AddFlash(r.Context(), sess.ID, Flash{Kind: kind, Message: message}); err != nil {
		a.Logger.Error("AUTH", fmt.Sprintf("Failed to queue flash: %v", err))
	}
}

// Redirect answers with 303 See Other after queueing a flash message.
func (a *Authenticator) Redirect(w http.ResponseWriter, r *http.Request, target string, kind FlashKind, message string) {
	a.Flash(w, r, kind, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// PopFlashes drains the flash queue of the caller's session.
func (a *Authenticator) PopFlashes(r *http.Request) []Flash {
	sess := CurrentSession(r.Context())
	if sess == nil {
		return nil
	}
	flashes, err := a.Sessions.PopFlashes(r.Context(), sess.ID)
	if err != nil {
		a.Logger.Error("AUTH", fmt.Sprintf("Failed to read flashes: %v", err))
		return nil
	}
	return flashes
}

func (a *Authenticator) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			a.denyAnonymous(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability lets through users whose role holds c. Browsers are redirected home with a
// flash; API clients get a JSON error.
func (a *Authenticator) RequireCapability(c models.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r.Context())
			if user == nil {
				a.denyAnonymous(w, r)
				return
			}
			if !user.Role.Can(c) {
				a.Logger.LogSecurity("ACCESS_DENIED", fmt.Sprintf("user %s (%s) on %s %s lacks %s", user.ID, user.Role, r.Method, r.URL.Path, c))
				if WantsAPI(r) {
					utils.WriteError(w, apperr.ErrForbidden)
					return
				}
				a.Redirect(w, r, "/", FlashError, "You do not have permission to access this page.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) denyAnonymous(w http.ResponseWriter, r *http.Request) {
	if WantsAPI(r) {
		utils.WriteError(w, apperr.ErrUnauthorized)
		return
	}
	a.Redirect(w, r, LoginPath, FlashError, "Please log in to access this page.")
}
