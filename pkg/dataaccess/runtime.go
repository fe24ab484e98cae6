package dataaccess

import (
	"context"
	"strings"
)

// Draft shadow-table conventions.
const (
	// DraftSuffix is appended to an entity's table name for its draft
	// shadow table.
	DraftSuffix = "_drafts"
	// DraftAdminTable holds one administrative record per open draft.
	DraftAdminTable = "DRAFT_DraftAdministrativeData"

	ColDraftUUID       = "DraftUUID"
	ColDraftAdminFK    = "DraftAdministrativeData_DraftUUID"
	ColIsActiveEntity  = "IsActiveEntity"
	ColHasActiveEntity = "HasActiveEntity"
)

// TableName maps a qualified entity name to its table name.
func TableName(entity string) string {
	return strings.ReplaceAll(entity, ".", "_")
}

// DraftTableName maps a qualified entity name to its draft shadow table.
func DraftTableName(entity string) string {
	return TableName(entity) + DraftSuffix
}

// Runtime is the execution boundary consumed by the operation compiler. The
// postgres implementation lives in this package; compiler tests substitute a
// fake.
type Runtime interface {
	// Query executes a structured select and returns its rows as maps.
	Query(ctx context.Context, stmt *Select) ([]map[string]any, error)
	// Insert executes a single-row insert and returns the stored row,
	// including defaulted columns.
	Insert(ctx context.Context, stmt *Insert) (map[string]any, error)
	// Update executes an update and returns the number of affected rows.
	Update(ctx context.Context, stmt *Update) (int64, error)
	// Delete executes a delete and returns the number of affected rows.
	Delete(ctx context.Context, stmt *Delete) (int64, error)
	// InTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise, including on context timeout.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Runtime) error) error
	// NewDraft is the draft-creation entry point: it creates the
	// administrative draft record and the root draft row, returning the
	// stored draft row.
	NewDraft(ctx context.Context, entity string, row map[string]any) (map[string]any, error)
}
