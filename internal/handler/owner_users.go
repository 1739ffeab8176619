package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kavehrad/traffic-dashboard/internal/config"
	"github.com/kavehrad/traffic-dashboard/internal/middleware"
	"github.com/kavehrad/traffic-dashboard/internal/model"
	"github.com/kavehrad/traffic-dashboard/internal/repository"
)

// OwnerUserHandler implements the owner-only user administration surface.
// The router guards every route here with RequireRole(OWNER); the handlers
// additionally rely on the repository to enforce the owner-protection
// invariants, so a future second caller cannot bypass them.
type OwnerUserHandler struct {
	Cfg   config.Config
	Users *repository.UserRepo
}

func NewOwnerUserHandler(cfg config.Config, u *repository.UserRepo) *OwnerUserHandler {
	return &OwnerUserHandler{Cfg: cfg, Users: u}
}

type createUserReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}
type changeRoleReq struct {
	Role string `json:"role"`
}
type setActiveReq struct {
	Active bool `json:"active"`
}

type adminUserResp struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func adminUserOf(u model.User) adminUserResp {
	return adminUserResp{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func pathUserID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// List returns all users.
func (h *OwnerUserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]adminUserResp, 0, len(users))
	for _, u := range users {
		out = append(out, adminUserOf(u))
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// Get returns one user by id.
func (h *OwnerUserHandler) Get(c echo.Context) error {
	id, ok := pathUserID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, adminUserOf(u))
}

// Create adds a managed account. Only ADMIN, OPERATOR and VIEWER are
// assignable: OWNER is rejected no matter who asks, since owner identities
// exist only through the bootstrap.
func (h *OwnerUserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name/email/password/role required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}
	if !model.AssignableRoles[req.Role] {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be one of ADMIN, OPERATOR, VIEWER"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, req.Role, h.Cfg.BcryptCost)
	if err != nil {
		switch err {
		case repository.ErrEmailExists:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "email already registered"})
		case repository.ErrRoleNotAssignable:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be one of ADMIN, OPERATOR, VIEWER"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusCreated, adminUserOf(u))
}

// ChangeRole moves a user between the assignable roles. Owner targets and
// the OWNER value are both rejected.
func (h *OwnerUserHandler) ChangeRole(c echo.Context) error {
	id, ok := pathUserID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req changeRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdateRole(ctx, id, req.Role); err != nil {
		switch err {
		case repository.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case repository.ErrRoleNotAssignable:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be one of ADMIN, OPERATOR, VIEWER"})
		case repository.ErrOwnerImmutable:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "owner role cannot be changed"})
		case repository.ErrLastOwner:
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot remove the last active owner"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update role failed"})
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, adminUserOf(u))
}

// SetActive toggles the active flag, reactivating a soft-deleted account or
// suspending a live one.
func (h *OwnerUserHandler) SetActive(c echo.Context) error {
	id, ok := pathUserID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req setActiveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.SetActive(ctx, id, req.Active); err != nil {
		switch err {
		case repository.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case repository.ErrLastOwner:
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot deactivate the last active owner"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, adminUserOf(u))
}

// Delete is a soft delete: it deactivates the target, reversible via
// SetActive. Owners cannot be deleted, and nobody can delete themselves —
// an owner included.
func (h *OwnerUserHandler) Delete(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authorized"})
	}
	id, idOK := pathUserID(c)
	if !idOK {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.Deactivate(ctx, p.ID, id); err != nil {
		switch err {
		case repository.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case repository.ErrOwnerProtected:
			return c.JSON(http.StatusForbidden, echo.Map{"error": "owner accounts cannot be deleted"})
		case repository.ErrSelfDelete:
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot delete own account"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
