// Package sync implements the line-delimited JSON export/import interchange
// format (spec.md §4.6): last-writer-wins merge on import, an optional
// overwrite strategy, dry-run, and conflict/error reporting.
package sync

import (
	"encoding/json"
	"fmt"

	"github.com/notadamking/elemental/internal/types"
)

// maxTruncatedContentLen bounds the `truncated-content` field on an
// ImportError so a malformed multi-megabyte line doesn't bloat the report.
const maxTruncatedContentLen = 200

// classification distinguishes an interchange line's record kind by field
// presence, per §4.6: "records with sourceId and targetId are dependencies;
// records with id are elements; malformed lines become errors."
type classification int

const (
	classUnknown classification = iota
	classElement
	classDependency
)

func classify(raw map[string]json.RawMessage) classification {
	_, hasSource := raw["sourceId"]
	_, hasTarget := raw["targetId"]
	if hasSource && hasTarget {
		return classDependency
	}
	if _, hasID := raw["id"]; hasID {
		return classElement
	}
	return classUnknown
}

// decodeElement unmarshals a raw JSON line into its typed Element variant,
// dispatching on the "type" discriminant field.
func decodeElement(line []byte) (types.Element, error) {
	var discriminant struct {
		Type types.Kind `json:"type"`
	}
	if err := json.Unmarshal(line, &discriminant); err != nil {
		return nil, err
	}

	var e types.Element
	switch discriminant.Type {
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
		return nil, fmt.Errorf("sync: unknown element type %q", discriminant.Type)
	}

	if err := json.Unmarshal(line, e); err != nil {
		return nil, err
	}
	return e, nil
}

func truncate(s string) string {
	if len(s) <= maxTruncatedContentLen {
		return s
	}
	return s[:maxTruncatedContentLen]
}
