// Package permissions holds the static catalog of permission strings and role
// definitions consulted by the moderation engine and badge presentation.
package permissions

import "sort"

// Permission strings. The set is closed: effective permissions are computed as
// set unions over these constants, never by string concatenation.
const (
	KickUser      = "kick_user"
	BanUser       = "ban_user"
	SilenceUser   = "silence_user"
	WarnUser      = "warn_user"
	DeleteMessage = "delete_message"
	PinMessage    = "pin_message"
	ManageRoom    = "manage_room"
	AssignRoles   = "assign_roles"
)

// All lists every known permission string.
var All = []string{
	KickUser,
	BanUser,
	SilenceUser,
	WarnUser,
	DeleteMessage,
	PinMessage,
	ManageRoom,
	AssignRoles,
}

// Known reports whether perm is a catalog permission.
func Known(perm string) bool {
	for _, p := range All {
		if p == perm {
			return true
		}
	}
	return false
}

// Set is a permission set.
type Set map[string]struct{}

// NewSet builds a Set from permission strings.
func NewSet(perms ...string) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Union merges other into a copy of s.
func (s Set) Union(other Set) Set {
	merged := make(Set, len(s)+len(other))
	for p := range s {
		merged[p] = struct{}{}
	}
	for p := range other {
		merged[p] = struct{}{}
	}
	return merged
}

// Sorted returns the set's members in lexical order, for stable API output.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Role is a fixed role definition. Priority orders badges: higher sorts first,
// ties broken by name.
type Role struct {
	Name             string            `json:"name"`
	DisplayText      map[string]string `json:"display_text"`
	Icon             string            `json:"icon"`
	Color            string            `json:"color"`
	Priority         int               `json:"priority"`
	IsAdministrative bool              `json:"is_administrative"`
	Permissions      Set               `json:"permissions"`
}

// AdminRoleName names the virtual always-active role granted to site admins.
// It is unioned in at resolution time and never appears in role_assignments.
const AdminRoleName = "admin"

// AdminRole is the virtual site-administrator role with the full catalog.
var AdminRole = Role{
	Name:             AdminRoleName,
	DisplayText:      map[string]string{"en": "Administrator"},
	Icon:             "shield",
	Color:            "#d94f30",
	Priority:         100,
	IsAdministrative: true,
	Permissions:      NewSet(All...),
}

// builtin is the role catalog. Roles are immutable at runtime; adding one is a
// code change, which keeps the permission surface reviewable.
var builtin = []Role{
	AdminRole,
	{
		Name:             "moderator",
		DisplayText:      map[string]string{"en": "Moderator"},
		Icon:             "paw-shield",
		Color:            "#2f7dd1",
		Priority:         80,
		IsAdministrative: true,
		Permissions: NewSet(
			KickUser, BanUser, SilenceUser, WarnUser, DeleteMessage, PinMessage,
		),
	},
	{
		Name:        "room_guide",
		DisplayText: map[string]string{"en": "Room Guide"},
		Icon:        "compass",
		Color:       "#3aa37b",
		Priority:    60,
		Permissions: NewSet(WarnUser, PinMessage, ManageRoom),
	},
	{
		Name:        "vet_expert",
		DisplayText: map[string]string{"en": "Veterinary Expert"},
		Icon:        "stethoscope",
		Color:       "#8a5cc9",
		Priority:    40,
		Permissions: NewSet(PinMessage),
	},
	{
		Name:        "shelter_partner",
		DisplayText: map[string]string{"en": "Shelter Partner"},
		Icon:        "home-heart",
		Color:       "#c9913a",
		Priority:    20,
		Permissions: NewSet(),
	},
}

// Registry resolves role names to definitions. Read-only after construction,
// safe for unsynchronized concurrent reads.
type Registry struct {
	byName map[string]Role
}

// NewRegistry returns the registry over the built-in role catalog.
func NewRegistry() *Registry {
	byName := make(map[string]Role, len(builtin))
	for _, role := range builtin {
		byName[role.Name] = role
	}
	return &Registry{byName: byName}
}

// Lookup returns the role definition for name.
func (r *Registry) Lookup(name string) (Role, bool) {
	role, ok := r.byName[name]
	return role, ok
}

// Roles returns all assignable roles (the virtual admin role excluded) sorted
// in badge order.
func (r *Registry) Roles() []Role {
	roles := make([]Role, 0, len(r.byName))
	for _, role := range r.byName {
		if role.Name == AdminRoleName {
			continue
		}
		roles = append(roles, role)
	}
	SortBadges(roles)
	return roles
}

// SortBadges orders roles by priority descending, then by name, so badge
// rendering is deterministic.
func SortBadges(roles []Role) {
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Priority != roles[j].Priority {
			return roles[i].Priority > roles[j].Priority
		}
		return roles[i].Name < roles[j].Name
	})
}
