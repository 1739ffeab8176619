// Package model holds the data structures persisted by the identity core.
package model

import "time"

// Role values, ordered from most to least privileged. OWNER is special: it is
// only ever assigned by the startup bootstrap, never through the API.
const (
	RoleOwner    = "OWNER"
	RoleAdmin    = "ADMIN"
	RoleOperator = "OPERATOR"
	RoleViewer   = "VIEWER"
)

// AssignableRoles are the roles an owner may hand out through the
// administrative API. OWNER is deliberately absent.
var AssignableRoles = map[string]bool{
	RoleAdmin:    true,
	RoleOperator: true,
	RoleViewer:   true,
}

// ValidRole reports whether s is one of the four known roles.
func ValidRole(s string) bool {
	return s == RoleOwner || AssignableRoles[s]
}

// User mirrors the 'users' table.
type User struct {
	ID             uint64
	Name           string
	Email          string
	PasswordHash   string
	Role           string
	IsActive       bool
	LastLoginAt    *time.Time
	ResetTokenHash *string
	ResetExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Permissions describes what a role may do. The dashboard's HTTP layer reads
// these flags when it needs a finer check than a coarse role gate.
type Permissions struct {
	ViewTraffic   bool // read dashboards and traffic data
	ControlLights bool // operate signals, acknowledge incidents
	ManageConfig  bool // edit intersections, thresholds, simulation settings
	ManageUsers   bool // full user administration
}

// rolePermissions is the single source of truth for the authorisation model.
// A static table keeps the mapping auditable; there is no inheritance.
var rolePermissions = map[string]Permissions{
	RoleOwner:    {ViewTraffic: true, ControlLights: true, ManageConfig: true, ManageUsers: true},
	RoleAdmin:    {ViewTraffic: true, ControlLights: true, ManageConfig: true},
	RoleOperator: {ViewTraffic: true, ControlLights: true},
	RoleViewer:   {ViewTraffic: true},
}

// PermissionsFor returns the capability set of a role. Unknown roles get the
// zero value, which grants nothing.
func PermissionsFor(role string) Permissions {
	return rolePermissions[role]
}
