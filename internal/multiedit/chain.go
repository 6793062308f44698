package multiedit

import (
	"context"
	"fmt"

	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/pkg/rljson"
)

// resolveChain walks the MultiEdit table from multiEditRef back through
// PreviousRef until it hits the root (previous == ""), per spec.md §4.7's
// "traversed by repeatedly resolving previous... until previous === null",
// returning the edits in root-first order.
func resolveChain(ctx context.Context, gw storage.Gateway, cakeKey, multiEditRef string) ([]rljson.Edit, error) {
	table := multiEditTable(cakeKey)
	editTbl := editTable(cakeKey)

	var reversed []rljson.MultiEdit
	ref := multiEditRef
	for ref != "" {
		doc, err := gw.ReadRows(ctx, table, rljson.Row{"_hash": ref})
		if err != nil {
			return nil, err
		}
		rows := doc[table].Data
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: multiEdit %q", ErrEditHistoryNotFound, ref)
		}
		if len(rows) > 1 {
			return nil, fmt.Errorf("%w: multiEdit %q", ErrAmbiguousEditHistory, ref)
		}
		m := multiEditFromRow(rows[0])
		m.Hash = ref
		reversed = append(reversed, m)
		ref = m.PreviousRef
	}

	edits := make([]rljson.Edit, len(reversed))
	for i, m := range reversed {
		editDoc, err := gw.ReadRows(ctx, editTbl, rljson.Row{"_hash": m.EditRef})
		if err != nil {
			return nil, err
		}
		editRows := editDoc[editTbl].Data
		if len(editRows) != 1 {
			return nil, fmt.Errorf("%w: edit %q", ErrEditHistoryNotFound, m.EditRef)
		}
		e := editFromRow(editRows[0])
		e.Hash = m.EditRef
		// reversed is leaf-first (walked back from the head); flip to
		// root-first so replay order matches how the chain was built.
		edits[len(reversed)-1-i] = e
	}
	return edits, nil
}

// checkEditHistoryMergeState looks up the EditHistory row recorded for
// multiEditRef and fails the way spec.md §4.7's editHistoryRef algorithm
// does before any replay happens: EditHistoryNotFound when no row recorded
// that multiEditRef, AmbiguousEditHistory when more than one did, and
// MergeNotSupported when the resolved node's previous lists more than one
// entry (a DAG merge, which this core detects and surfaces rather than
// resolving).
func checkEditHistoryMergeState(ctx context.Context, gw storage.Gateway, cakeKey, multiEditRef string) error {
	table := editHistoryTable(cakeKey)
	doc, err := gw.ReadRows(ctx, table, rljson.Row{"multiEditRef": multiEditRef})
	if err != nil {
		return err
	}
	rows := doc[table].Data
	if len(rows) == 0 {
		return fmt.Errorf("%w: editHistory for multiEdit %q", ErrEditHistoryNotFound, multiEditRef)
	}
	if len(rows) > 1 {
		return fmt.Errorf("%w: editHistory for multiEdit %q", ErrAmbiguousEditHistory, multiEditRef)
	}
	h := editHistoryFromRow(rows[0])
	if len(h.Previous) > 1 {
		return fmt.Errorf("%w: editHistory %q", ErrMergeNotSupported, h.TimeID)
	}
	return nil
}
