package compiler

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
)

// createDraft routes a create into the draft lifecycle. Draft-enabled roots
// get a fresh administrative record and draft row; deep-inserted children go
// into their own draft shadow tables, linked to the same administrative
// record. Composition children created directly are linked to the parent's
// open draft when one can be found. Everything runs in one transaction.
func (c *Compiler) createDraft(ctx context.Context, res *annotations.Resource, row map[string]any, children map[string][]map[string]any, links map[string]childLink) (map[string]any, error) {
	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	fillUUIDKeys(res, row)

	var stored map[string]any
	err := c.runtime.InTx(execCtx, func(txCtx context.Context, tx dataaccess.Runtime) error {
		var txErr error
		if res.DraftEnabled {
			stored, txErr = tx.NewDraft(txCtx, res.Target, row)
		} else {
			stored, txErr = c.insertDraftChildRow(txCtx, tx, res, row)
		}
		if txErr != nil {
			return txErr
		}
		return c.insertDraftChildren(txCtx, tx, stored, children, links)
	})
	if err != nil {
		return nil, c.execError(err, CodeDraftCreateFailed)
	}
	return filterRow(stored, res.Omitted), nil
}

// insertDraftChildRow inserts a composition child into its draft shadow table.
// The parent draft is looked up by the child's parent reference; the lookup
// and the insert are not serialized against a concurrent activation, so a
// parent draft activated in between leaves the child unlinked. That case is
// logged and the insert proceeds without linkage.
func (c *Compiler) insertDraftChildRow(ctx context.Context, tx dataaccess.Runtime, res *annotations.Resource, row map[string]any) (map[string]any, error) {
	row[dataaccess.ColIsActiveEntity] = false
	row[dataaccess.ColHasActiveEntity] = false

	parentRef, hasRef := row[res.ParentFK]
	if hasRef && parentRef != nil {
		parentKey := parentKeyColumn(res)
		parents, err := tx.Query(ctx, &dataaccess.Select{
			From:    dataaccess.DraftTableName(res.ParentTarget),
			Columns: []string{dataaccess.ColDraftAdminFK},
			Where:   &dataaccess.Comparison{Field: parentKey, Op: dataaccess.OpEq, Value: parentRef},
			Limit:   1,
		})
		if err != nil {
			return nil, err
		}
		if len(parents) == 1 {
			row[dataaccess.ColDraftAdminFK] = parents[0][dataaccess.ColDraftAdminFK]
		} else {
			c.logger.Warn("no open parent draft found, inserting child without draft linkage",
				zap.String("entity", res.Target),
				zap.String("parent", res.ParentTarget),
				zap.Any("parentRef", parentRef))
		}
	} else {
		c.logger.Warn("draft child created without a parent reference",
			zap.String("entity", res.Target),
			zap.String("parentField", res.ParentFK))
	}

	return tx.Insert(ctx, &dataaccess.Insert{
		Into: dataaccess.DraftTableName(res.Target),
		Row:  row,
	})
}

// insertDraftChildren writes deep-inserted child rows into their draft shadow
// tables, stamped with the stored parent's key and administrative record.
func (c *Compiler) insertDraftChildren(ctx context.Context, tx dataaccess.Runtime, parent map[string]any, children map[string][]map[string]any, links map[string]childLink) error {
	assocs := make([]string, 0, len(children))
	for assoc := range children {
		assocs = append(assocs, assoc)
	}
	sort.Strings(assocs)

	adminRef := parent[dataaccess.ColDraftAdminFK]
	for _, assoc := range assocs {
		link := links[assoc]
		parentKey, ok := parent[link.ParentKey]
		if !ok {
			return NewError(CodeDraftCreateFailed,
				"stored parent draft is missing key %s for %s", link.ParentKey, assoc)
		}
		for _, raw := range children[assoc] {
			childArgs := make(map[string]any, len(raw))
			for k, v := range raw {
				childArgs[k] = v
			}
			row, nested, verr := c.buildWritePayload(link.Target, childArgs, nil)
			if verr != nil {
				return verr
			}
			if len(nested) > 0 {
				return NewError(CodeInvalidInput,
					"deep insert for %s cannot nest further levels", assoc)
			}
			fillUUIDKeys(link.Target, row)
			row[link.FK] = parentKey
			row[dataaccess.ColIsActiveEntity] = false
			row[dataaccess.ColHasActiveEntity] = false
			if adminRef != nil {
				row[dataaccess.ColDraftAdminFK] = adminRef
			}
			if _, err := tx.Insert(ctx, &dataaccess.Insert{
				Into: dataaccess.DraftTableName(link.Target.Target),
				Row:  row,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillUUIDKeys generates values for UUID-typed key fields the payload left
// out. Draft rows never rely on database defaults for their keys, since the
// stored key is needed for later linkage.
func fillUUIDKeys(res *annotations.Resource, row map[string]any) {
	for name, typeName := range res.Keys {
		if typeName != cds.TypeUUID {
			continue
		}
		if _, ok := row[name]; !ok {
			row[name] = uuid.NewString()
		}
	}
}

// parentKeyColumn derives the parent's key column addressed by the child's
// parent-reference foreign key (assoc_Key naming).
func parentKeyColumn(res *annotations.Resource) string {
	for assoc, fk := range res.ForeignKeys {
		if fk == res.ParentFK {
			return fk[len(assoc)+1:]
		}
	}
	// ParentFK is a plain property rather than a generated foreign key.
	return res.ParentFK
}
