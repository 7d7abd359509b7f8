package domain

import (
	"fmt"
	"regexp"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// RoleAny matches every principal, authenticated or not.
const RoleAny = "any"

// Permission grants one action on a document to one role.
type Permission struct {
	Action Action
	Role   string
}

// UserRole returns the role string for a single user.
func UserRole(userID string) string { return "user:" + userID }

func Read(role string) Permission   { return Permission{Action: ActionRead, Role: role} }
func Update(role string) Permission { return Permission{Action: ActionUpdate, Role: role} }
func Delete(role string) Permission { return Permission{Action: ActionDelete, Role: role} }

// String renders the wire form, e.g. read("user:abc").
func (p Permission) String() string {
	return fmt.Sprintf("%s(%q)", p.Action, p.Role)
}

var permissionPattern = regexp.MustCompile(`^(read|update|delete)\("([^"]+)"\)$`)

// ParsePermission parses the wire form produced by String.
func ParsePermission(s string) (Permission, error) {
	m := permissionPattern.FindStringSubmatch(s)
	if m == nil {
		return Permission{}, Validationf("permission %q is malformed", s)
	}
	return Permission{Action: Action(m[1]), Role: m[2]}, nil
}

// PermissionStrings converts perms to their wire form.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}

// ParsePermissions is the inverse of PermissionStrings.
func ParsePermissions(ss []string) ([]Permission, error) {
	out := make([]Permission, 0, len(ss))
	for _, s := range ss {
		p, err := ParsePermission(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Principal is the identity a store operation runs as.
type Principal struct {
	UserID     string
	Privileged bool
}

// Roles returns the roles a principal holds.
func (p Principal) Roles() []string {
	if p.UserID == "" {
		return []string{RoleAny}
	}
	return []string{RoleAny, UserRole(p.UserID)}
}

// Allows reports whether perms grant action to the principal.
func (p Principal) Allows(perms []Permission, action Action) bool {
	if p.Privileged {
		return true
	}
	roles := p.Roles()
	for _, perm := range perms {
		if perm.Action != action {
			continue
		}
		for _, r := range roles {
			if perm.Role == r {
				return true
			}
		}
	}
	return false
}

// CanGrant checks that a non-privileged principal keeps a grant for itself
// whenever it hands access to another user. Sharing a document with another
// party is allowed; creating one owned only by someone else is not.
func (p Principal) CanGrant(perms []Permission) error {
	if p.Privileged {
		return nil
	}
	if p.UserID == "" {
		return ErrUnauthenticated
	}
	own := UserRole(p.UserID)
	var foreign *Permission
	for i, perm := range perms {
		if perm.Role == own {
			return nil
		}
		if perm.Role != RoleAny && foreign == nil {
			foreign = &perms[i]
		}
	}
	if foreign != nil {
		return Authorizationf("principal %s cannot grant %s", p.UserID, *foreign)
	}
	return nil
}

// MessagePermissions lets both participants read and update (read receipts),
// and only the sender delete.
func MessagePermissions(senderID, receiverID string) []Permission {
	return []Permission{
		Read(UserRole(senderID)),
		Read(UserRole(receiverID)),
		Update(UserRole(senderID)),
		Update(UserRole(receiverID)),
		Delete(UserRole(senderID)),
	}
}

// NotificationPermissions scopes a notification to its recipient only.
func NotificationPermissions(userID string) []Permission {
	role := UserRole(userID)
	return []Permission{Read(role), Update(role), Delete(role)}
}

// ApplicationPermissions lets both parties read and update, and only the
// tenant delete.
func ApplicationPermissions(tenantID, landlordID string) []Permission {
	return []Permission{
		Read(UserRole(tenantID)),
		Read(UserRole(landlordID)),
		Update(UserRole(tenantID)),
		Update(UserRole(landlordID)),
		Delete(UserRole(tenantID)),
	}
}

// UserPermissions lets only the account owner read their profile. Account
// writes run privileged.
func UserPermissions(userID string) []Permission {
	return []Permission{Read(UserRole(userID))}
}
