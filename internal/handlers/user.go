// internal/handlers/user.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

// UserHandler manages staff accounts, roles and the permission catalog.
type UserHandler struct {
	userService  *services.UserService
	authzService *services.AuthorizationService
}

func NewUserHandler(userService *services.UserService, authzService *services.AuthorizationService) *UserHandler {
	return &UserHandler{
		userService:  userService,
		authzService: authzService,
	}
}

// GET /api/v1/users
func (h *UserHandler) List(c *gin.Context) {
	filter := services.UserFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           utils.QueryString(c, "status"),
		UserType:         utils.QueryString(c, "user_type"),
	}
	users, total, err := h.userService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, users, total, filter.PaginationParams)
}

// GET /api/v1/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id", "user")
	if !ok {
		return
	}
	user, err := h.userService.GetUserByID(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"user": user})
}

// POST /api/v1/users
func (h *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.CreateStaff(actorFrom(c), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyUserCreated),
		"user":    user,
	})
}

// PUT /api/v1/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := paramUUID(c, "id", "user")
	if !ok {
		return
	}
	var req services.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.Update(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyUserUpdated),
		"user":    user,
	})
}

// DELETE /api/v1/users/:id
//
// Deactivates the account; users are never hard-deleted.
func (h *UserHandler) Deactivate(c *gin.Context) {
	id, ok := paramUUID(c, "id", "user")
	if !ok {
		return
	}
	user, err := h.userService.Deactivate(actorFrom(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyUserUpdated),
		"user":    user,
	})
}

// PUT /api/v1/users/:id/roles
func (h *UserHandler) AssignRoles(c *gin.Context) {
	id, ok := paramUUID(c, "id", "user")
	if !ok {
		return
	}
	var req services.AssignRolesRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.authzService.AssignRoles(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyUserUpdated),
		"user":    user,
	})
}

// GET /api/v1/permissions
func (h *UserHandler) ListPermissions(c *gin.Context) {
	permissions, err := h.authzService.ListPermissions()
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"permissions": permissions})
}

// GET /api/v1/roles
func (h *UserHandler) ListRoles(c *gin.Context) {
	roles, err := h.authzService.ListRoles()
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"roles": roles})
}

// GET /api/v1/roles/:id
func (h *UserHandler) GetRole(c *gin.Context) {
	id, ok := paramUUID(c, "id", "role")
	if !ok {
		return
	}
	role, err := h.authzService.GetRole(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"role": role})
}

// POST /api/v1/roles
func (h *UserHandler) CreateRole(c *gin.Context) {
	var req services.RoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.authzService.CreateRole(actorFrom(c), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyRoleCreated),
		"role":    role,
	})
}

// PUT /api/v1/roles/:id
func (h *UserHandler) UpdateRole(c *gin.Context) {
	id, ok := paramUUID(c, "id", "role")
	if !ok {
		return
	}
	var req services.RoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.authzService.UpdateRole(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyRoleUpdated),
		"role":    role,
	})
}

// DELETE /api/v1/roles/:id
func (h *UserHandler) DeleteRole(c *gin.Context) {
	id, ok := paramUUID(c, "id", "role")
	if !ok {
		return
	}
	if err := h.authzService.DeleteRole(actorFrom(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyRoleDeleted)})
}
