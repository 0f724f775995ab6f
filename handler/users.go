package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/service"
)

type UserHandler struct {
	users *service.UserDirectory
}

func NewUserHandler(users *service.UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Register adds or replaces a user by name
func (h *UserHandler) Register(c *gin.Context) {
	var user model.User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user"})
		return
	}
	switch user.Role {
	case model.RoleAuthor, model.RoleReviewer, model.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be author, reviewer or admin"})
		return
	}
	if err := h.users.Register(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
