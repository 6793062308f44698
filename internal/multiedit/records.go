package multiedit

import (
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

// toRow renders shapes matching exactly what rljson.NewEdit/NewMultiEdit
// hashed, so writing it through hashkit.WithHash reproduces the same
// content hash already carried on the Go value.
func editToRow(e rljson.Edit) rljson.Row {
	row := rljson.Row{"name": e.Name, "action": rljson.Row{"type": string(e.Type), "data": e.Data}}
	return row
}

func multiEditToRow(m rljson.MultiEdit) rljson.Row {
	row := rljson.Row{"edit": m.EditRef}
	if m.PreviousRef != "" {
		row["previous"] = m.PreviousRef
	}
	return row
}

func editHistoryToRow(h rljson.EditHistory) rljson.Row {
	row := rljson.Row{"timeId": h.TimeID, "dataRef": h.DataRef, "multiEditRef": h.MultiEditRef}
	if len(h.Previous) > 0 {
		row["previous"] = h.Previous
	}
	return row
}

func editHistoryFromRow(row rljson.Row) rljson.EditHistory {
	h := rljson.EditHistory{}
	if v, ok := row["timeId"].(string); ok {
		h.TimeID = v
	}
	if v, ok := row["dataRef"].(string); ok {
		h.DataRef = v
	}
	if v, ok := row["multiEditRef"].(string); ok {
		h.MultiEditRef = v
	}
	if v, ok := row["previous"].([]string); ok {
		h.Previous = v
	} else if v, ok := row["previous"].([]any); ok {
		for _, p := range v {
			if s, ok := p.(string); ok {
				h.Previous = append(h.Previous, s)
			}
		}
	}
	return h
}

func multiEditFromRow(row rljson.Row) rljson.MultiEdit {
	m := rljson.MultiEdit{}
	if v, ok := row["edit"].(string); ok {
		m.EditRef = v
	}
	if v, ok := row["previous"].(string); ok {
		m.PreviousRef = v
	}
	if v, ok := row[hashkit.HashField].(string); ok {
		m.Hash = v
	}
	return m
}

func editFromRow(row rljson.Row) rljson.Edit {
	e := rljson.Edit{}
	if v, ok := row["name"].(string); ok {
		e.Name = v
	}
	if action, ok := row["action"].(map[string]any); ok {
		if t, ok := action["type"].(string); ok {
			e.Type = rljson.EditActionType(t)
		}
		e.Data = action["data"]
	}
	if v, ok := row[hashkit.HashField].(string); ok {
		e.Hash = v
	}
	return e
}
