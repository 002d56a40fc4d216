package models

import "github.com/camden-git/ppemonitor/permissions"

// Role is the coarse access level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var rolePermissions = map[Role][]string{
	RoleUser: {
		permissions.DetectionRun,
		permissions.ViolationViewOwn,
	},
	RoleAdmin: {
		permissions.DetectionRun,
		permissions.ViolationViewOwn,
		permissions.ViolationViewAny,
		permissions.UserList,
		permissions.UserDelete,
		permissions.UserEditRole,
		permissions.ReportSummary,
		permissions.ReportExport,
		permissions.ReportEvents,
	},
}

// ParseRole validates a role name coming from an API payload.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := rolePermissions[r]
	return r, ok
}

// GlobalPermissions returns the permission keys granted to the role.
func (r Role) GlobalPermissions() []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
