package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/auth"
)

func TestHasOperationAccess(t *testing.T) {
	admin := auth.User{ID: "u1", Authenticated: true, Roles: []string{"admin"}}
	anonymous := auth.Anonymous()

	tests := []struct {
		name         string
		user         auth.User
		restrictions []annotations.Restriction
		want         bool
	}{
		{"no restrictions admit everyone", anonymous, nil, true},
		{"held role admits", admin, []annotations.Restriction{{Role: "admin"}}, true},
		{"missing role denies", admin, []annotations.Restriction{{Role: "auditor"}}, false},
		{"any pseudo-role admits anonymous", anonymous, []annotations.Restriction{{Role: auth.RoleAny}}, true},
		{
			"authenticated pseudo-role needs a token",
			anonymous,
			[]annotations.Restriction{{Role: auth.RoleAuthenticated}},
			false,
		},
		{
			"authenticated pseudo-role admits signed-in caller",
			auth.User{ID: "u2", Authenticated: true},
			[]annotations.Restriction{{Role: auth.RoleAuthenticated}},
			true,
		},
		{
			"operation filters do not matter for admission",
			admin,
			[]annotations.Restriction{{Role: "admin", Operations: []annotations.Operation{annotations.OpDelete}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasOperationAccess(tt.user, tt.restrictions))
		})
	}
}

func TestComputeWrapAccess(t *testing.T) {
	editor := auth.User{ID: "u1", Authenticated: true, Roles: []string{"editor"}}

	tests := []struct {
		name         string
		user         auth.User
		restrictions []annotations.Restriction
		want         WrapAccess
	}{
		{
			"no restrictions grant everything",
			auth.Anonymous(),
			nil,
			WrapAccess{CanRead: true, CanCreate: true, CanUpdate: true, CanDelete: true},
		},
		{
			"held role without filter grants everything",
			editor,
			[]annotations.Restriction{{Role: "editor"}},
			WrapAccess{CanRead: true, CanCreate: true, CanUpdate: true, CanDelete: true},
		},
		{
			"operations union across held roles",
			auth.User{Authenticated: true, Roles: []string{"viewer", "editor"}},
			[]annotations.Restriction{
				{Role: "viewer", Operations: []annotations.Operation{annotations.OpRead}},
				{Role: "editor", Operations: []annotations.Operation{annotations.OpUpdate}},
			},
			WrapAccess{CanRead: true, CanUpdate: true},
		},
		{
			"unheld roles contribute nothing",
			editor,
			[]annotations.Restriction{
				{Role: "admin", Operations: []annotations.Operation{annotations.OpDelete}},
			},
			WrapAccess{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeWrapAccess(tt.user, tt.restrictions))
		})
	}
}

func TestWrapAccessPredicates(t *testing.T) {
	all := WrapAccess{CanRead: true, CanCreate: true, CanUpdate: true, CanDelete: true}
	assert.True(t, all.All())
	assert.True(t, all.Any())

	readOnly := WrapAccess{CanRead: true}
	assert.False(t, readOnly.All())
	assert.True(t, readOnly.Any())
	assert.True(t, readOnly.Allows(annotations.OpRead))
	assert.False(t, readOnly.Allows(annotations.OpDelete))

	assert.False(t, WrapAccess{}.Any())
}
