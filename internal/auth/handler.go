package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	csrfManager *shared.CSRFManager
	validator   *validator.Validate
	loginLimit  int
	loginWindow time.Duration
}

// NewHandler constructs a Handler instance. loginLimit requests per minute are allowed on
// POST /login per client IP; zero disables the extra limit.
func NewHandler(logger *slog.Logger, service *Service, csrf *shared.CSRFManager, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		logger:      logger,
		service:     service,
		csrfManager: csrf,
		validator:   shared.NewValidator(),
		loginLimit:  loginLimit,
		loginWindow: time.Minute,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	login := r
	if h.loginLimit > 0 {
		login = r.With(httprate.LimitByIP(h.loginLimit, h.loginWindow))
	}
	login.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/status", h.handleStatus)
	r.Get("/csrf", h.handleCSRF)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, httpx.TypeValidation, "Invalid request body", err.Error())
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	user, err := h.service.Login(r.Context(), sess, clientInfo(r), req.Username, req.Password)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, httpx.TypeUnauthenticated, "Login failed", "invalid username or password")
	case errors.Is(err, shared.ErrAccountDisabled):
		httpx.Problem(w, http.StatusForbidden, httpx.TypeForbidden, "Login failed", "account disabled")
	default:
		h.logger.Error("login failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), shared.SessionFromContext(r.Context()))
	httpx.JSON(w, http.StatusOK, map[string]any{"logged_in": false})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), shared.SessionFromContext(r.Context()))
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, status)
	case errors.Is(err, ErrSessionUserGone):
		httpx.JSON(w, http.StatusNotFound, map[string]any{
			"logged_in": false,
			"message":   "session user no longer exists; logged out",
		})
	default:
		h.logger.Error("auth status", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token, "header": shared.CSRFHeader})
}

func clientInfo(r *http.Request) ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ClientInfo{IP: ip, UserAgent: r.UserAgent()}
}
