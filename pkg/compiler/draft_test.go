package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
)

func TestCreateRoutesDraftEnabledRoot(t *testing.T) {
	res := bookResource()
	res.DraftEnabled = true

	rt := &fakeRuntime{}
	comp := newTestCompiler(rt, res)

	_, err := comp.Create(context.Background(), res, map[string]any{
		"title": "Leviathan",
	})
	require.NoError(t, err)

	require.Len(t, rt.draftEntities, 1)
	assert.Equal(t, "CatalogService.Books", rt.draftEntities[0])
	assert.Empty(t, rt.inserts, "draft roots never hit the active table directly")

	// UUID keys are generated up front so later linkage can address the row.
	assert.NotEmpty(t, rt.draftRows[0]["ID"])
	assert.Equal(t, "Leviathan", rt.draftRows[0]["title"])
}

func TestCreateRoutesCompositionChildIntoParentDraft(t *testing.T) {
	order, item := orderResources()
	order.DraftEnabled = true
	item.ParentTarget = order.Target
	item.ParentFK = "order_ID"

	rt := &fakeRuntime{queryResults: [][]map[string]any{
		{{dataaccess.ColDraftAdminFK: "admin-1"}},
	}}
	comp := newTestCompiler(rt, order, item)

	_, err := comp.Create(context.Background(), item, map[string]any{
		"product": "widget",
		"order":   "o1",
	})
	require.NoError(t, err)

	// Parent draft looked up by the child's parent reference.
	require.Len(t, rt.queries, 1)
	assert.Equal(t, "ShopService_Orders_drafts", rt.queries[0].From)
	fragment, args, rerr := dataaccess.RenderExpr(rt.queries[0].Where)
	require.NoError(t, rerr)
	assert.Equal(t, `"ID" = $1`, fragment)
	assert.Equal(t, []any{"o1"}, args)

	require.Len(t, rt.inserts, 1)
	row := rt.inserts[0].Row
	assert.Equal(t, "ShopService_OrderItems_drafts", rt.inserts[0].Into)
	assert.Equal(t, "admin-1", row[dataaccess.ColDraftAdminFK])
	assert.Equal(t, false, row[dataaccess.ColIsActiveEntity])
	assert.Equal(t, false, row[dataaccess.ColHasActiveEntity])
}

func TestCreateCompositionChildWithoutParentDraftProceedsUnlinked(t *testing.T) {
	// The parent lookup and the insert are not atomic. A missing parent
	// draft is logged and the child row is stored without linkage.
	order, item := orderResources()
	order.DraftEnabled = true
	item.ParentTarget = order.Target
	item.ParentFK = "order_ID"

	rt := &fakeRuntime{queryResults: [][]map[string]any{{}}}
	comp := newTestCompiler(rt, order, item)

	_, err := comp.Create(context.Background(), item, map[string]any{
		"product": "widget",
		"order":   "o-gone",
	})
	require.NoError(t, err)

	require.Len(t, rt.inserts, 1)
	assert.NotContains(t, rt.inserts[0].Row, dataaccess.ColDraftAdminFK)
}

func TestCreateDraftEnabledRootWritesChildrenIntoShadowTables(t *testing.T) {
	order, item := orderResources()
	order.DraftEnabled = true

	rt := &fakeRuntime{draftResult: map[string]any{
		"ID":                       "o1",
		"buyer":                    "alice",
		dataaccess.ColDraftAdminFK: "admin-1",
	}}
	comp := newTestCompiler(rt, order, item)

	_, err := comp.Create(context.Background(), order, map[string]any{
		"ID":    "o1",
		"buyer": "alice",
		"items": []any{
			map[string]any{"ID": "i1", "product": "widget"},
			map[string]any{"ID": "i2", "product": "gadget"},
		},
	})
	require.NoError(t, err)

	require.Len(t, rt.draftEntities, 1)
	require.Len(t, rt.inserts, 2, "deep-inserted children must reach the draft shadow table")
	for _, child := range rt.inserts {
		assert.Equal(t, "ShopService_OrderItems_drafts", child.Into)
		assert.Equal(t, "o1", child.Row["order_ID"])
		assert.Equal(t, "admin-1", child.Row[dataaccess.ColDraftAdminFK])
		assert.Equal(t, false, child.Row[dataaccess.ColIsActiveEntity])
		assert.Equal(t, false, child.Row[dataaccess.ColHasActiveEntity])
	}
}

func TestCreateDraftChildInsertFailureSurfacesDraftCode(t *testing.T) {
	order, item := orderResources()
	order.DraftEnabled = true

	rt := &fakeRuntime{
		draftResult: map[string]any{"ID": "o1", dataaccess.ColDraftAdminFK: "admin-1"},
		insertErr:   assert.AnError,
	}
	comp := newTestCompiler(rt, order, item)

	_, err := comp.Create(context.Background(), order, map[string]any{
		"ID":    "o1",
		"items": []any{map[string]any{"product": "widget"}},
	})
	require.Error(t, err)
	assert.Equal(t, CodeDraftCreateFailed, opCode(err))
}

func TestCreateDraftRunsInsideTransaction(t *testing.T) {
	res := bookResource()
	res.DraftEnabled = true

	rt := &fakeRuntime{}
	comp := newTestCompiler(rt, res)

	_, err := comp.Create(context.Background(), res, map[string]any{"title": "x"})
	require.NoError(t, err)

	require.Len(t, rt.draftInTx, 1)
	assert.True(t, rt.draftInTx[0], "draft creation must run inside the mutation transaction")
}

func TestCreateDraftFailureCode(t *testing.T) {
	res := bookResource()
	res.DraftEnabled = true

	rt := &fakeRuntime{draftErr: assert.AnError}
	comp := newTestCompiler(rt, res)

	_, err := comp.Create(context.Background(), res, map[string]any{"title": "x"})
	require.Error(t, err)
	assert.Equal(t, CodeDraftCreateFailed, opCode(err))
}
