// Package access computes which operations a caller may perform against a
// definition, from its resolved restriction list and the caller's roles.
// Decisions made here gate tool admission: they are evaluated when the tool
// list is assembled for a session, not re-evaluated mid-request.
package access

import (
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/auth"
)

// WrapAccess lists the CRUD operations a caller may perform on an entity.
type WrapAccess struct {
	CanRead   bool
	CanCreate bool
	CanUpdate bool
	CanDelete bool
}

// All reports whether every operation is permitted.
func (a WrapAccess) All() bool {
	return a.CanRead && a.CanCreate && a.CanUpdate && a.CanDelete
}

// Any reports whether at least one operation is permitted.
func (a WrapAccess) Any() bool {
	return a.CanRead || a.CanCreate || a.CanUpdate || a.CanDelete
}

// Allows reports whether the given operation is permitted.
func (a WrapAccess) Allows(op annotations.Operation) bool {
	switch op {
	case annotations.OpCreate:
		return a.CanCreate
	case annotations.OpRead:
		return a.CanRead
	case annotations.OpUpdate:
		return a.CanUpdate
	case annotations.OpDelete:
		return a.CanDelete
	}
	return false
}

// HasOperationAccess reports whether the caller may invoke an operation at
// all: true when the restriction list is empty (no access control) or when
// the caller holds any listed role. Operation filters are ignored here; this
// is the admission check for tools and prompts.
func HasOperationAccess(user auth.User, restrictions []annotations.Restriction) bool {
	if len(restrictions) == 0 {
		return true
	}
	for _, restriction := range restrictions {
		if user.HasRole(restriction.Role) {
			return true
		}
	}
	return false
}

// ComputeWrapAccess derives the caller's CRUD access for an entity. An empty
// restriction list grants everything. Otherwise, operations of every held
// role are unioned; a held role without an operation filter grants all four
// immediately.
func ComputeWrapAccess(user auth.User, restrictions []annotations.Restriction) WrapAccess {
	if len(restrictions) == 0 {
		return WrapAccess{CanRead: true, CanCreate: true, CanUpdate: true, CanDelete: true}
	}

	var access WrapAccess
	for _, restriction := range restrictions {
		if !user.HasRole(restriction.Role) {
			continue
		}
		if restriction.Operations == nil {
			return WrapAccess{CanRead: true, CanCreate: true, CanUpdate: true, CanDelete: true}
		}
		for _, op := range restriction.Operations {
			switch op {
			case annotations.OpCreate:
				access.CanCreate = true
			case annotations.OpRead:
				access.CanRead = true
			case annotations.OpUpdate:
				access.CanUpdate = true
			case annotations.OpDelete:
				access.CanDelete = true
			}
		}
	}
	return access
}
