package notify

import "testing"

func TestMatches_EmptyFilterMatchesAll(t *testing.T) {
	fc := FilterContext{ResourceID: "res-1", ResourcePoolID: "pool-1", ResourceTypeID: "type-a"}

	for _, filter := range []string{"", "null", "{}", "  "} {
		if !Matches([]byte(filter), fc) {
			t.Errorf("filter %q: expected match", filter)
		}
	}
}

func TestMatches_SingleField(t *testing.T) {
	fc := FilterContext{ResourceID: "res-1", ResourcePoolID: "pool-1", ResourceTypeID: "type-a"}

	if !Matches([]byte(`{"resourcePoolId": "pool-1"}`), fc) {
		t.Error("matching pool: expected match")
	}
	if Matches([]byte(`{"resourcePoolId": "pool-2"}`), fc) {
		t.Error("mismatching pool: expected no match")
	}
}

func TestMatches_AllPresentFieldsMustMatch(t *testing.T) {
	fc := FilterContext{ResourceID: "res-1", ResourcePoolID: "pool-1", ResourceTypeID: "type-a"}

	if !Matches([]byte(`{"resourcePoolId": "pool-1", "resourceTypeId": "type-a"}`), fc) {
		t.Error("both fields match: expected match")
	}
	// One matching field is not enough; the predicate is a logical AND.
	if Matches([]byte(`{"resourcePoolId": "pool-1", "resourceTypeId": "type-b"}`), fc) {
		t.Error("one field mismatches: expected no match")
	}
}

func TestMatches_UnrecognizedFieldsAreIgnored(t *testing.T) {
	fc := FilterContext{ResourceID: "res-1"}
	if !Matches([]byte(`{"somethingElse": 42}`), fc) {
		t.Error("unrecognized field: expected match")
	}
}

func TestMatches_MalformedFilterFailsClosed(t *testing.T) {
	fc := FilterContext{ResourceID: "res-1", ResourcePoolID: "pool-1"}

	malformed := []string{
		`{broken`,
		`[1, 2, 3]`,
		`"just a string"`,
		`{"resourcePoolId": ["pool-1"]}`, // recognized field, wrong type
	}
	for _, filter := range malformed {
		if Matches([]byte(filter), fc) {
			t.Errorf("filter %q: expected fail-closed no-match", filter)
		}
	}
}

func TestMatches_UnresolvedContextFieldDoesNotMatch(t *testing.T) {
	// A deleted resource resolves to a context with only its id; filters
	// requiring pool or type cannot match.
	fc := FilterContext{ResourceID: "res-1"}
	if Matches([]byte(`{"resourcePoolId": "pool-1"}`), fc) {
		t.Error("pool filter against unresolved context: expected no match")
	}
}

func TestMatchesAlarm(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"empty filter", "", true},
		{"empty object", "{}", true},
		{"matching id", `{"resourceId": "res-1"}`, true},
		{"mismatching id", `{"resourceId": "res-2"}`, false},
		{"empty id wildcard", `{"resourceId": ""}`, true},
		{"missing id wildcard", `{"resourcePoolId": "pool-1"}`, true},
		{"malformed fails closed", `{nope`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesAlarm([]byte(tt.filter), "res-1"); got != tt.want {
				t.Errorf("MatchesAlarm(%q): got %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}
