package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilities(t *testing.T) {
	tests := []struct {
		role               Role
		view, edit, manage bool
		name, label        string
	}{
		{RoleOwner, true, true, true, "owner", "owner"},
		{RoleEditor, true, true, false, "editor", "editor"},
		{RoleViewer, true, false, false, "viewer", "viewer"},
		{RoleNone, false, false, false, "", "no access"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.view, tt.role.CanView())
			assert.Equal(t, tt.edit, tt.role.CanEdit())
			assert.Equal(t, tt.manage, tt.role.CanManageMembers())
			assert.Equal(t, tt.name, tt.role.String())
			assert.Equal(t, tt.label, tt.role.Label())
		})
	}
}

func TestUnknownRolePanics(t *testing.T) {
	assert.Panics(t, func() { _ = Role(42).CanView() })
}

func TestParseMemberRole(t *testing.T) {
	r, err := ParseMemberRole("editor")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, r)

	r, err = ParseMemberRole("viewer")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, r)

	for _, bad := range []string{"owner", "", "Editor", "admin"} {
		_, err := ParseMemberRole(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolve(t *testing.T) {
	r, err := Resolve("u1", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, r)

	// An owner never reads a membership row, even a stray one.
	r, err = Resolve("u1", "u1", "viewer")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, r)

	r, err = Resolve("u1", "u2", "editor")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, r)

	r, err = Resolve("u1", "u2", "")
	require.NoError(t, err)
	assert.Equal(t, RoleNone, r)

	r, err = Resolve("", "", "")
	require.NoError(t, err)
	assert.Equal(t, RoleNone, r, "an anonymous caller never matches an empty owner")

	_, err = Resolve("u1", "u2", "superuser")
	assert.Error(t, err)
}

func TestRoleJSON(t *testing.T) {
	out, err := json.Marshal(map[string]Role{"role": RoleEditor, "none": RoleNone})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"editor","none":""}`, string(out))
}
