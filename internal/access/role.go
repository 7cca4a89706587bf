// Package access defines the closed set of roles a user can hold on a
// document and what each role may do.
package access

import "fmt"

type Role int

const (
	// RoleNone means the user can neither see nor change the document.
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	// RoleOwner is derived from the document's owner column and never stored
	// as a membership row.
	RoleOwner
)

// String returns the wire name of the role. RoleNone renders as "".
func (r Role) String() string {
	switch r {
	case RoleNone:
		return ""
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleOwner:
		return "owner"
	default:
		panic(fmt.Sprintf("access: unknown role %d", int(r)))
	}
}

// Label is the display form used by pages; RoleNone reads "no access".
func (r Role) Label() string {
	if r == RoleNone {
		return "no access"
	}
	return r.String()
}

func (r Role) CanView() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	case RoleNone:
		return false
	default:
		panic(fmt.Sprintf("access: unknown role %d", int(r)))
	}
}

func (r Role) CanEdit() bool {
	switch r {
	case RoleOwner, RoleEditor:
		return true
	case RoleViewer, RoleNone:
		return false
	default:
		panic(fmt.Sprintf("access: unknown role %d", int(r)))
	}
}

func (r Role) CanManageMembers() bool {
	switch r {
	case RoleOwner:
		return true
	case RoleEditor, RoleViewer, RoleNone:
		return false
	default:
		panic(fmt.Sprintf("access: unknown role %d", int(r)))
	}
}

// MarshalText makes roles encode as their wire name in JSON.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseMemberRole parses a role that may be stored on a membership row.
// Only editor and viewer are accepted.
func ParseMemberRole(s string) (Role, error) {
	switch s {
	case "editor":
		return RoleEditor, nil
	case "viewer":
		return RoleViewer, nil
	default:
		return RoleNone, fmt.Errorf("invalid member role %q", s)
	}
}

// Resolve derives the caller's role from the document owner and the
// caller's membership row, if any. memberRole is "" when no row exists.
func Resolve(ownerUserID, callerID, memberRole string) (Role, error) {
	if callerID != "" && ownerUserID == callerID {
		return RoleOwner, nil
	}
	if memberRole == "" {
		return RoleNone, nil
	}
	return ParseMemberRole(memberRole)
}
