package annotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRestrictions(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		requires string
		want     []Restriction
	}{
		{
			"no declarations allow everyone",
			nil, "",
			[]Restriction{},
		},
		{
			"requires role comes first and is unconditional",
			nil, "admin",
			[]Restriction{{Role: "admin"}},
		},
		{
			"scalar grant and to",
			[]any{map[string]any{"grant": "READ", "to": "viewer"}},
			"",
			[]Restriction{{Role: "viewer", Operations: []Operation{OpRead}}},
		},
		{
			"WRITE expands to the three mutating operations",
			[]any{map[string]any{"grant": "WRITE", "to": "editor"}},
			"",
			[]Restriction{{Role: "editor", Operations: []Operation{OpCreate, OpUpdate, OpDelete}}},
		},
		{
			"CHANGE expands to update",
			[]any{map[string]any{"grant": "CHANGE", "to": "editor"}},
			"",
			[]Restriction{{Role: "editor", Operations: []Operation{OpUpdate}}},
		},
		{
			"star grant expands to all operations",
			[]any{map[string]any{"grant": "*", "to": "admin"}},
			"",
			[]Restriction{{Role: "admin", Operations: AllOperations()}},
		},
		{
			"missing grant expands to all operations",
			[]any{map[string]any{"to": "admin"}},
			"",
			[]Restriction{{Role: "admin", Operations: AllOperations()}},
		},
		{
			"missing to defaults to any authenticated caller",
			[]any{map[string]any{"grant": "READ"}},
			"",
			[]Restriction{{Role: AuthenticatedUserRole, Operations: []Operation{OpRead}}},
		},
		{
			"lists expand in declaration order, roles outermost",
			[]any{map[string]any{
				"grant": []any{"READ", "UPDATE"},
				"to":    []any{"viewer", "editor"},
			}},
			"",
			[]Restriction{
				{Role: "viewer", Operations: []Operation{OpRead}},
				{Role: "viewer", Operations: []Operation{OpUpdate}},
				{Role: "editor", Operations: []Operation{OpRead}},
				{Role: "editor", Operations: []Operation{OpUpdate}},
			},
		},
		{
			"requires precedes expanded restrictions",
			[]any{map[string]any{"grant": "READ", "to": "viewer"}},
			"admin",
			[]Restriction{
				{Role: "admin"},
				{Role: "viewer", Operations: []Operation{OpRead}},
			},
		},
		{
			"unrecognized grant keyword passes through",
			[]any{map[string]any{"grant": "APPROVE", "to": "manager"}},
			"",
			[]Restriction{{Role: "manager", Operations: []Operation{Operation("APPROVE")}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRestrictions(tt.raw, tt.requires))
		})
	}
}
