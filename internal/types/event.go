package types

import (
	"encoding/json"
	"sort"
	"time"
)

// EventType names the kind of state change an Event records.
type EventType string

const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventDeleted           EventType = "deleted"
	EventClosed            EventType = "closed"
	EventReopened          EventType = "reopened"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventAutoBlocked       EventType = "auto_blocked"
	EventAutoUnblocked     EventType = "auto_unblocked"
	EventMemberAdded       EventType = "member_added"
	EventMemberRemoved     EventType = "member_removed"
)

// SystemBlockedCacheActor is the reserved actor used for auto_blocked and
// auto_unblocked events. Callers must not be able to forge this actor via
// direct updates (spec.md §9).
const SystemBlockedCacheActor = "system:blocked-cache"

// Event is one append-only row in the event log.
type Event struct {
	ID        int64           `json:"id"`
	ElementID string          `json:"elementId"`
	Type      EventType       `json:"eventType"`
	Actor     string          `json:"actor"`
	OldValue  json.RawMessage `json:"oldValue,omitempty"`
	NewValue  json.RawMessage `json:"newValue,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ComputeChangedFields returns the sorted union of added, removed, and
// value-changed top-level keys between old and new JSON payloads. A nil
// payload on either side is treated as "no keys", so every key on the other
// side is reported as added/removed.
func ComputeChangedFields(old, new json.RawMessage) ([]string, error) {
	oldMap, err := toMap(old)
	if err != nil {
		return nil, err
	}
	newMap, err := toMap(new)
	if err != nil {
		return nil, err
	}

	changed := map[string]bool{}
	for k, v := range oldMap {
		nv, ok := newMap[k]
		if !ok || !jsonEqual(v, nv) {
			changed[k] = true
		}
	}
	for k, v := range newMap {
		ov, ok := oldMap[k]
		if !ok || !jsonEqual(v, ov) {
			changed[k] = true
		}
	}

	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func toMap(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}
