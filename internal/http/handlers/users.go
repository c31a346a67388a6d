package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/pollhub/internal/domain/user"
	"github.com/geocoder89/pollhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type UserStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	Update(ctx context.Context, u user.User) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type UsersHandler struct {
	users UserStore
}

func NewUsersHandler(users UserStore) *UsersHandler {
	return &UsersHandler{users: users}
}

func (h *UsersHandler) Profile(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	u, err := h.users.GetByID(ctx.Request.Context(), callerID)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not fetch profile")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	users, err := h.users.List(ctx.Request.Context())

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": users,
		"count": len(users),
	})
}

func (h *UsersHandler) GetUserById(ctx *gin.Context) {
	id := ctx.Param("id")

	u, err := h.users.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not fetch user")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	var req user.UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	id := ctx.Param("id")
	cctx := ctx.Request.Context()

	u, err := h.users.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not update user")
		return
	}

	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}

	updated, err := h.users.Update(cctx, u)

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondConflict(ctx, "email_taken", "Email is already in use.")
			return
		}
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not update user")
		return
	}

	ctx.JSON(http.StatusOK, updated)
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	callerID, _ := middlewares.UserIDFromContext(ctx)
	id := ctx.Param("id")

	// An admin removing their own account would orphan the session that is
	// performing the removal.
	if id == callerID {
		RespondBadRequest(ctx, "You cannot delete your own account.", nil)
		return
	}

	err := h.users.Delete(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not delete user")
		return
	}

	ctx.Status(http.StatusNoContent)
}
