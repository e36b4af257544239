package notify

import (
	"bytes"
	"encoding/json"
)

// FilterContext carries the resolved attributes an event is matched
// against. Fields come from the current stored state of the resource, not
// from the event payload.
type FilterContext struct {
	ResourceID     string
	ResourcePoolID string
	ResourceTypeID string
}

// lookup resolves a recognized filter field to its context value.
func (fc FilterContext) lookup(key string) (string, bool) {
	switch key {
	case "resourceId":
		return fc.ResourceID, true
	case "resourcePoolId":
		return fc.ResourcePoolID, true
	case "resourceTypeId":
		return fc.ResourceTypeID, true
	}
	return "", false
}

// Matches evaluates a subscription filter against a resolved context.
//
// An empty or null filter matches everything. Every recognized field
// present in the filter must equal the context value (logical AND); absent
// fields are wildcards. Unrecognized fields are ignored. A filter that is
// not a JSON object, or whose recognized field is not a string, is treated
// as non-matching: the matcher fails closed rather than erroring.
func Matches(filter []byte, fc FilterContext) bool {
	if emptyFilter(filter) {
		return true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(filter, &fields); err != nil {
		return false
	}

	for key, raw := range fields {
		want, recognized := fc.lookup(key)
		if !recognized {
			continue
		}
		var got string
		if err := json.Unmarshal(raw, &got); err != nil {
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

// MatchesAlarm evaluates a filter for alarm delivery: only the resourceId
// field participates, and a missing or empty resourceId is a wildcard.
// Malformed filters fail closed.
func MatchesAlarm(filter []byte, resourceID string) bool {
	if emptyFilter(filter) {
		return true
	}

	var fields struct {
		ResourceID *string `json:"resourceId"`
	}
	if err := json.Unmarshal(filter, &fields); err != nil {
		return false
	}
	if fields.ResourceID == nil || *fields.ResourceID == "" {
		return true
	}
	return *fields.ResourceID == resourceID
}

// emptyFilter reports whether the raw filter bytes carry no criteria.
func emptyFilter(filter []byte) bool {
	trimmed := bytes.TrimSpace(filter)
	switch string(trimmed) {
	case "", "null", "{}":
		return true
	}
	return false
}
