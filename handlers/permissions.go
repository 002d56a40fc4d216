package handlers

import (
	"net/http"

	"github.com/camden-git/ppemonitor/permissions"
)

type PermissionsHandler struct{}

func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

type PermissionsResponse struct {
	Groups  []permissions.PermissionGroupDefinition `json:"groups"`
	Granted []string                                `json:"granted"`
}

// ListPermissions serves the defined permission groups along with the keys
// granted to the caller's role.
func (h *PermissionsHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	resp := PermissionsResponse{
		Groups:  permissions.DefinedPermissionGroups,
		Granted: []string{},
	}
	if user, ok := UserFromContext(r.Context()); ok {
		resp.Granted = user.Role.GlobalPermissions()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health answers the unauthenticated root route.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "PPE compliance monitor is running"})
}
