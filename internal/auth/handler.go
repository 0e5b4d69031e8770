package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-auth/gatehouse/internal/observability"
	"github.com/gatehouse-auth/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-auth/gatehouse/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	audit          *shared.AuditLogger
	metrics        *observability.Metrics
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, audit *shared.AuditLogger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		audit:          audit,
		metrics:        metrics,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router. Anything other
// than the registered methods gets chi's default 405.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type loginResponse struct {
	Status string       `json:"status"`
	User   userResponse `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body must be a JSON object with email and password")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: email and password are required", httpx.ErrValidation))
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordLogin(false)
		h.recordAudit(r, shared.AuditLog{
			Action:   shared.AuditLoginFailed,
			Entity:   "user",
			EntityID: NormalizeEmail(req.Email),
		})
		httpx.RespondError(w, err)
		return
	}

	token, sess, err := h.sessionManager.Create(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("create session", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, sess.ExpiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.metrics.RecordLogin(true)
	h.metrics.SessionOpened()
	h.recordAudit(r, shared.AuditLog{
		ActorID:  user.ID,
		Action:   shared.AuditLoginSucceeded,
		Entity:   "session",
		EntityID: sess.ID,
	})

	http.SetCookie(w, h.sessionManager.Cookie(token, sess.ExpiresAt))
	httpx.JSON(w, http.StatusOK, loginResponse{
		Status: "ok",
		User:   userResponse{ID: user.ID, Email: user.Email, Name: user.Name},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.sessionManager.CookieName()); err == nil && cookie.Value != "" {
		if sess, err := h.sessionManager.Validate(r.Context(), cookie.Value); err == nil {
			if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
			h.metrics.SessionClosed()
			h.recordAudit(r, shared.AuditLog{
				ActorID:  sess.UserID,
				Action:   shared.AuditLogout,
				Entity:   "session",
				EntityID: sess.ID,
			})
		}
		if err := h.sessionManager.Invalidate(r.Context(), cookie.Value); err != nil {
			h.logger.Error("invalidate session", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
	}
	http.SetCookie(w, h.sessionManager.ClearCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, shared.ErrSessionInvalid)
		return
	}
	user, err := h.service.User(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Error("resolve user", slog.Any("error", err), slog.Int64("user_id", sess.UserID))
		// The session outlived the account; treat as unauthenticated.
		httpx.RespondError(w, shared.ErrSessionInvalid)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email, Name: user.Name})
}

func (h *Handler) recordAudit(r *http.Request, log shared.AuditLog) {
	if h.audit == nil {
		return
	}
	log.Meta = map[string]any{"ip": r.RemoteAddr, "ua": r.UserAgent()}
	if err := h.audit.Record(r.Context(), log); err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}
