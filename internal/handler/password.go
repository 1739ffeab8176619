package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kavehrad/traffic-dashboard/internal/config"
	"github.com/kavehrad/traffic-dashboard/internal/middleware"
	"github.com/kavehrad/traffic-dashboard/internal/queue"
	"github.com/kavehrad/traffic-dashboard/internal/repository"
	queue_publisher "github.com/kavehrad/traffic-dashboard/internal/service"
	"github.com/kavehrad/traffic-dashboard/internal/utils"
)

// AccountHandler covers the password lifecycle: authenticated change,
// forgot/reset via out-of-band token. Every successful password mutation
// revokes the user's refresh tokens so other sessions must log in again.
type AccountHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
}

func NewAccountHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo) *AccountHandler {
	return &AccountHandler{Cfg: cfg, Users: u, Tokens: t}
}

type changePasswordReq struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}
type forgotPasswordReq struct {
	Email string `json:"email"`
}
type resetPasswordReq struct {
	Token string `json:"token"`
	New   string `json:"new_password"`
}

// forgotAck is returned by ForgotPassword no matter what, so the endpoint
// cannot be used to probe which emails are registered.
const forgotAck = "if the account exists, reset instructions have been sent"

// ChangePassword verifies the current password and sets a new one.
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.New) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, p.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Current) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, req.New, h.Cfg.BcryptCost); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}
	if err := h.revokeSessions(ctx, u.ID, u.Email, c.RealIP(), "password_change"); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke sessions failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "password updated, all sessions revoked"})
}

// ForgotPassword issues a reset token for an existing active account and
// always returns the same acknowledgement.
func (h *AccountHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil || !u.IsActive {
		// Same ack as the success path; no account enumeration.
		return c.JSON(http.StatusOK, echo.Map{"message": forgotAck})
	}

	reset, err := utils.NewResetToken(h.Cfg.ResetTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue reset token failed"})
	}
	if err := h.Users.SetResetToken(ctx, u.ID, utils.HashTokenRaw(reset.Raw), reset.Exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save reset token failed"})
	}
	// The raw token leaves the process only through the out-of-band channel.
	_ = queue_publisher.PublishAuthEvent(ctx, queue.AuthEvent{
		Kind:       queue.EventPasswordResetRequest,
		UserID:     u.ID,
		Email:      u.Email,
		Credential: reset.Raw,
		ExpiresAt:  reset.Exp.Format(time.RFC3339),
	})

	return c.JSON(http.StatusOK, echo.Map{"message": forgotAck})
}

// ResetPassword consumes a reset token. Unknown and expired tokens get the
// same 400.
func (h *AccountHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token and new_password required"})
	}
	if len(req.New) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByResetHash(ctx, utils.HashTokenRaw(strings.TrimSpace(req.Token)))
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if u.ResetExpiresAt == nil || time.Now().UTC().After(*u.ResetExpiresAt) || !u.IsActive {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset token"})
	}

	// UpdatePassword clears the reset columns, so the token is single-use.
	if err := h.Users.UpdatePassword(ctx, u.ID, req.New, h.Cfg.BcryptCost); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}
	if err := h.revokeSessions(ctx, u.ID, u.Email, c.RealIP(), "password_reset"); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke sessions failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "password reset, all sessions revoked"})
}

func (h *AccountHandler) revokeSessions(ctx context.Context, userID uint64, email, ip, reason string) error {
	n, err := h.Tokens.RevokeAllForUser(ctx, userID, ip)
	if err != nil {
		return err
	}
	if n > 0 {
		// Notification is best-effort; the revocation already happened.
		_ = queue_publisher.PublishAuthEvent(ctx, queue.AuthEvent{
			Kind:     queue.EventSessionsRevoked,
			UserID:   userID,
			Email:    email,
			Sessions: n,
			Reason:   reason,
		})
	}
	return nil
}
