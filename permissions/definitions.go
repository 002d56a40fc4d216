package permissions

// PermissionScope defines the context in which a permission applies
type PermissionScope string

const (
	ScopeGlobal PermissionScope = "global" // applies system-wide
	ScopeOwn    PermissionScope = "own"    // applies to records owned by the caller
)

// PermissionDefinition describes a single, specific permission
type PermissionDefinition struct {
	Key         string          `json:"key"`         // unique key, e.g., "detection.run"
	Name        string          `json:"name"`        // friendly name, e.g., "Run Detection"
	Description string          `json:"description"` // detailed description of what the permission allows
	Scope       PermissionScope `json:"scope"`       // scope of the permission
}

// PermissionGroupDefinition groups related permissions
type PermissionGroupDefinition struct {
	Key         string                 `json:"key"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Permissions []PermissionDefinition `json:"permissions"`
}

const (
	DetectionRun = "detection.run"

	ViolationViewOwn = "violation.view_own"
	ViolationViewAny = "violation.view_any"

	UserList     = "user.list"
	UserDelete   = "user.delete"
	UserEditRole = "user.edit_role"

	ReportSummary = "report.summary"
	ReportExport  = "report.export"
	ReportEvents  = "report.events"
)

// DefinedPermissionGroups holds all statically defined permission groups and their permissions
var DefinedPermissionGroups = []PermissionGroupDefinition{
	{
		Key:         "detection",
		Name:        "Detection",
		Description: "Permissions related to submitting frames for PPE detection.",
		Permissions: []PermissionDefinition{
			{
				Key:         DetectionRun,
				Name:        "Run Detection",
				Description: "Allows uploading images or webcam frames for PPE analysis.",
				Scope:       ScopeOwn,
			},
		},
	},
	{
		Key:         "violation",
		Name:        "Violations",
		Description: "Permissions related to reading persisted violation records.",
		Permissions: []PermissionDefinition{
			{
				Key:         ViolationViewOwn,
				Name:        "View Own Violations",
				Description: "Allows viewing violation records created from the caller's own submissions.",
				Scope:       ScopeOwn,
			},
			{
				Key:         ViolationViewAny,
				Name:        "View Any Violations",
				Description: "Allows viewing violation records of any user.",
				Scope:       ScopeGlobal,
			},
		},
	},
	{
		Key:         "user",
		Name:        "User Management",
		Description: "Permissions related to managing user accounts.",
		Permissions: []PermissionDefinition{
			{
				Key:         UserList,
				Name:        "List Users",
				Description: "Allows viewing a list of user accounts.",
				Scope:       ScopeGlobal,
			},
			{
				Key:         UserDelete,
				Name:        "Delete User",
				Description: "Allows deleting user accounts together with their violations.",
				Scope:       ScopeGlobal,
			},
			{
				Key:         UserEditRole,
				Name:        "Change User Role",
				Description: "Allows promoting or demoting user accounts.",
				Scope:       ScopeGlobal,
			},
		},
	},
	{
		Key:         "report",
		Name:        "Reporting",
		Description: "Permissions related to cross-user compliance reporting.",
		Permissions: []PermissionDefinition{
			{
				Key:         ReportSummary,
				Name:        "View Compliance Summary",
				Description: "Allows viewing compliant vs. violating record counts per user.",
				Scope:       ScopeGlobal,
			},
			{
				Key:         ReportExport,
				Name:        "Export Compliance Summary",
				Description: "Allows downloading the compliance summary as CSV.",
				Scope:       ScopeGlobal,
			},
			{
				Key:         ReportEvents,
				Name:        "Live Violation Feed",
				Description: "Allows subscribing to the live stream of persisted violations.",
				Scope:       ScopeGlobal,
			},
		},
	},
}

var (
	allPermissionKeysMap map[string]PermissionDefinition
	allPermissionKeys    []string
)

func init() {
	allPermissionKeysMap = make(map[string]PermissionDefinition)
	for _, group := range DefinedPermissionGroups {
		for _, perm := range group.Permissions {
			allPermissionKeysMap[perm.Key] = perm
			allPermissionKeys = append(allPermissionKeys, perm.Key)
		}
	}
}

// GetAllPermissionDefinitions returns a map of all defined permissions, keyed by their unique string key
func GetAllPermissionDefinitions() map[string]PermissionDefinition {
	return allPermissionKeysMap
}

// GetAllPermissionKeys returns a slice of all unique permission string keys
func GetAllPermissionKeys() []string {
	// return a copy to prevent modification of the internal slice
	keys := make([]string, len(allPermissionKeys))
	copy(keys, allPermissionKeys)
	return keys
}

// IsValidPermissionKey checks if a given permission key is defined
func IsValidPermissionKey(key string) bool {
	_, ok := allPermissionKeysMap[key]
	return ok
}

// GetPermissionDefinition retrieves a specific permission definition by its key.
func GetPermissionDefinition(key string) (PermissionDefinition, bool) {
	def, ok := allPermissionKeysMap[key]
	return def, ok
}
