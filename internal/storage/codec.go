package storage

import (
	"encoding/json"
	"fmt"

	"github.com/notadamking/elemental/internal/types"
)

// baseColumnKeys are the JSON keys that live in dedicated elements table
// columns rather than inside the `data` JSON blob.
var baseColumnKeys = []string{"id", "type", "createdAt", "updatedAt", "createdBy", "deletedAt", "tags", "contentHash"}

// Encode splits an element into its ElementRow: dedicated columns plus a
// `data` blob holding everything else (type-specific fields and metadata).
func Encode(e types.Element) (ElementRow, error) {
	b := e.ElementBase()

	raw, err := json.Marshal(e)
	if err != nil {
		return ElementRow{}, fmt.Errorf("storage: encode %s: %w", b.ID, err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ElementRow{}, fmt.Errorf("storage: encode %s: %w", b.ID, err)
	}
	for _, k := range baseColumnKeys {
		delete(m, k)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ElementRow{}, fmt.Errorf("storage: encode %s: %w", b.ID, err)
	}

	return ElementRow{
		ID:          b.ID,
		Kind:        b.Kind,
		Data:        data,
		ContentHash: b.ContentHash,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
		CreatedBy:   b.CreatedBy,
		DeletedAt:   b.DeletedAt,
		Tags:        append([]string(nil), b.Tags...),
	}, nil
}

// Decode reconstructs a typed Element from a row by re-merging the
// dedicated columns with the `data` blob and dispatching on Kind.
func Decode(row ElementRow) (types.Element, error) {
	var dataMap map[string]json.RawMessage
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &dataMap); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", row.ID, err)
		}
	} else {
		dataMap = map[string]json.RawMessage{}
	}

	idJSON, _ := json.Marshal(row.ID)
	kindJSON, _ := json.Marshal(row.Kind)
	createdAtJSON, _ := json.Marshal(row.CreatedAt)
	updatedAtJSON, _ := json.Marshal(row.UpdatedAt)
	createdByJSON, _ := json.Marshal(row.CreatedBy)
	tagsJSON, _ := json.Marshal(row.Tags)
	hashJSON, _ := json.Marshal(row.ContentHash)

	dataMap["id"] = idJSON
	dataMap["type"] = kindJSON
	dataMap["createdAt"] = createdAtJSON
	dataMap["updatedAt"] = updatedAtJSON
	dataMap["createdBy"] = createdByJSON
	dataMap["tags"] = tagsJSON
	dataMap["contentHash"] = hashJSON
	if row.DeletedAt != nil {
		deletedJSON, _ := json.Marshal(row.DeletedAt)
		dataMap["deletedAt"] = deletedJSON
	}

	full, err := json.Marshal(dataMap)
	if err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", row.ID, err)
	}

	var e types.Element
	switch row.Kind {
	case types.KindTask:
		e = &types.Task{}
	case types.KindPlan:
		e = &types.Plan{}
	case types.KindWorkflow:
		e = &types.Workflow{}
	case types.KindDocument:
		e = &types.Document{}
	case types.KindEntity:
		e = &types.Entity{}
	case types.KindChannel:
		e = &types.Channel{}
	case types.KindMessage:
		e = &types.Message{}
	case types.KindLibrary:
		e = &types.Library{}
	default:
		return nil, fmt.Errorf("storage: decode %s: unknown kind %q", row.ID, row.Kind)
	}

	if err := json.Unmarshal(full, e); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", row.ID, err)
	}
	return e, nil
}
