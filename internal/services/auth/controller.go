package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainauth "github.com/NordCoder/storefront-auth/internal/domain/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/obs"
	"github.com/NordCoder/storefront-auth/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

type Opts struct {
	Logger       *zap.Logger
	Limiter      ratelimit.Limiter
	CookieName   string
	CookieDomain string
	CookiePath   string
	CookieSecure bool
	RefreshTTL   time.Duration
}

// Controller exposes the session engine over HTTP.
type Controller struct {
	log          *zap.Logger
	uc           *Usecase
	limiter      ratelimit.Limiter
	cookieName   string
	cookieDomain string
	cookiePath   string
	cookieSecure bool
	refreshTTL   time.Duration
}

func NewController(uc *Usecase, o Opts) *Controller {
	if o.CookieName == "" {
		o.CookieName = "refresh_token"
	}
	if o.CookiePath == "" {
		o.CookiePath = "/"
	}
	return &Controller{
		log:          obs.Component(o.Logger, "http"),
		uc:           uc,
		limiter:      o.Limiter,
		cookieName:   o.CookieName,
		cookieDomain: o.CookieDomain,
		cookiePath:   o.CookiePath,
		cookieSecure: o.CookieSecure,
		refreshTTL:   o.RefreshTTL,
	}
}

// Routes mounts the auth and admin endpoints on r.
func (c *Controller) Routes(r chi.Router) {
	r.Route("/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if c.limiter != nil {
				r.Use(RateLimit(c.limiter, c.log))
			}
			r.Post("/register", c.handleRegister)
			r.Post("/login", c.handleLogin)
			r.Post("/refresh", c.handleRefresh)
			r.Post("/logout", c.handleLogout)
		})
		r.With(Authenticate(c.uc, c.log)).Get("/me", c.handleMe)
	})

	r.Route("/v1/admin/identities/{id}", func(r chi.Router) {
		r.Use(Authenticate(c.uc, c.log), RequireRole(identity.RoleAdmin, c.log))
		r.Post("/role", c.handleChangeRole)
		r.Post("/deactivate", c.handleDeactivate)
		r.Post("/reactivate", c.handleReactivate)
		r.Post("/logout-all", c.handleLogoutAll)
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type authResponse struct {
	*domainauth.TokenPair
	Identity *identity.Identity `json:"identity,omitempty"`
}

func (c *Controller) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, ErrInvalidInput, c.log)
		return
	}
	pair, ident, err := c.uc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err, c.log)
		return
	}
	c.setRefreshCookie(w, pair.RefreshToken)
	respondJSON(w, http.StatusCreated, authResponse{TokenPair: pair, Identity: ident})
}

func (c *Controller) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, ErrInvalidInput, c.log)
		return
	}
	pair, err := c.uc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err, c.log)
		return
	}
	c.setRefreshCookie(w, pair.RefreshToken)
	respondJSON(w, http.StatusOK, authResponse{TokenPair: pair})
}

func (c *Controller) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, err := c.refreshFromRequest(r)
	if err != nil {
		writeError(w, ErrInvalidInput, c.log)
		return
	}
	pair, err := c.uc.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.clearRefreshCookie(w)
		}
		writeError(w, err, c.log)
		return
	}
	c.setRefreshCookie(w, pair.RefreshToken)
	respondJSON(w, http.StatusOK, authResponse{TokenPair: pair})
}

func (c *Controller) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, _ := c.refreshFromRequest(r)
	_ = c.uc.Logout(r.Context(), raw)
	c.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	ident, err := c.uc.Me(r.Context(), p)
	if err != nil {
		writeError(w, err, c.log)
		return
	}
	respondJSON(w, http.StatusOK, ident)
}

func (c *Controller) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := c.targetID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, ErrInvalidInput, c.log)
		return
	}
	// Only a superadmin may mint another superadmin.
	if role, known := identity.ParseRole(req.Role); known && role == identity.RoleSuperAdmin {
		p, _ := PrincipalFromCtx(r.Context())
		if err := Require(p, identity.RoleSuperAdmin); err != nil {
			writeError(w, err, c.log)
			return
		}
	}
	ident, err := c.uc.ChangeRole(r.Context(), id, req.Role)
	if err != nil {
		writeError(w, err, c.log)
		return
	}
	respondJSON(w, http.StatusOK, ident)
}

func (c *Controller) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := c.targetID(w, r)
	if !ok {
		return
	}
	ident, err := c.uc.Deactivate(r.Context(), id)
	if err != nil {
		writeError(w, err, c.log)
		return
	}
	respondJSON(w, http.StatusOK, ident)
}

func (c *Controller) handleReactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := c.targetID(w, r)
	if !ok {
		return
	}
	ident, err := c.uc.Reactivate(r.Context(), id)
	if err != nil {
		writeError(w, err, c.log)
		return
	}
	respondJSON(w, http.StatusOK, ident)
}

func (c *Controller) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := c.targetID(w, r)
	if !ok {
		return
	}
	if err := c.uc.ForceLogoutAll(r.Context(), id); err != nil {
		writeError(w, err, c.log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) targetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, ErrInvalidInput, c.log)
		return uuid.Nil, false
	}
	return id, true
}

// refreshFromRequest prefers the JSON body and falls back to the cookie.
func (c *Controller) refreshFromRequest(r *http.Request) (string, error) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if req.RefreshToken != "" {
		return req.RefreshToken, nil
	}
	if ck, err := r.Cookie(c.cookieName); err == nil {
		return ck.Value, nil
	}
	return "", nil
}

func (c *Controller) setRefreshCookie(w http.ResponseWriter, raw string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    raw,
		Path:     c.cookiePath,
		Domain:   c.cookieDomain,
		HttpOnly: true,
		Secure:   c.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.refreshTTL.Seconds()),
		Expires:  time.Now().Add(c.refreshTTL).UTC(),
	})
}

func (c *Controller) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    "",
		Path:     c.cookiePath,
		Domain:   c.cookieDomain,
		HttpOnly: true,
		Secure:   c.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// StatusOf maps the error taxonomy to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError never puts storage error text on the wire.
func writeError(w http.ResponseWriter, err error, log *zap.Logger) {
	status := StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		msg = "internal error"
	}
	respondJSON(w, status, map[string]string{"error": msg})
}
