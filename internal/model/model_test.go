package model

import (
	"errors"
	"testing"
)

func TestNewSeedRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantID  bool
		wantErr error
	}{
		{name: "numeric id", input: "783214", want: "783214", wantID: true},
		{name: "forced id prefix", input: "id:42", want: "42", wantID: true},
		{name: "plain handle", input: "gopher", want: "gopher"},
		{name: "at handle", input: "@Gopher_Dev", want: "gopher_dev"},
		{name: "profile url", input: "https://x.com/SomeOne/status/1", want: "someone"},
		{name: "twitter url with query", input: "https://twitter.com/abc?lang=en", want: "abc"},
		{name: "surrounding whitespace", input: "  @abc  ", want: "abc"},
		{name: "empty", input: "   ", wantErr: ErrEmptySeed},
		{name: "invalid characters", input: "@bad-handle", wantErr: ErrInvalidHandle},
		{name: "too long", input: "abcdefghijklmnop", wantErr: ErrInvalidHandle},
		{name: "non numeric id prefix", input: "id:abc", wantErr: ErrInvalidHandle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ref, err := NewSeedRef(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref.Value() != tt.want {
				t.Errorf("Value() = %q, want %q", ref.Value(), tt.want)
			}
			if ref.IsID() != tt.wantID {
				t.Errorf("IsID() = %v, want %v", ref.IsID(), tt.wantID)
			}
		})
	}
}

func TestSeedRefString(t *testing.T) {
	t.Parallel()

	handle, err := NewSeedRef("Gopher")
	if err != nil {
		t.Fatal(err)
	}
	if handle.String() != "@gopher" {
		t.Errorf("expected @gopher, got %s", handle.String())
	}

	id, err := NewSeedRef("123")
	if err != nil {
		t.Fatal(err)
	}
	if id.String() != "123" {
		t.Errorf("expected 123, got %s", id.String())
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Category
	}{
		{"hidden_gem", CategoryHiddenGem},
		{"Hidden-Gem", CategoryHiddenGem},
		{"rising_star", CategoryRisingStar},
		{"ESTABLISHED", CategoryEstablished},
		{" potential ", CategoryPotential},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCategory(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := ParseCategory("celebrity"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestNodeStateString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		state    NodeState
		expected string
		terminal bool
	}{
		{NodeStatePending, "pending", false},
		{NodeStateInFlight, "in_flight", false},
		{NodeStateDone, "done", true},
		{NodeStateFailed, "failed", true},
		{NodeState(99), "unknown", false},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.state.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.state.String(), tc.expected)
			}
			if tc.state.IsTerminal() != tc.terminal {
				t.Errorf("IsTerminal() = %v, expected %v", tc.state.IsTerminal(), tc.terminal)
			}
		})
	}
}

func TestNodeHasProfile(t *testing.T) {
	t.Parallel()

	if (Node{ID: "1"}).HasProfile() {
		t.Error("bare node should not have a profile")
	}
	if !(Node{ID: "1", Handle: "a"}).HasProfile() {
		t.Error("node with handle should have a profile")
	}
	if !(Node{ID: "1", FollowersCount: 3}).HasProfile() {
		t.Error("node with counts should have a profile")
	}
}

func TestEdgeKey(t *testing.T) {
	t.Parallel()

	a := Edge{SourceID: "1", TargetID: "2"}
	b := Edge{SourceID: "1", TargetID: "2"}
	if a.Key() != b.Key() {
		t.Error("edges with the same endpoints must share a key")
	}
	if a.Key() == (Edge{SourceID: "2", TargetID: "1"}).Key() {
		t.Error("edge key must be directional")
	}
}
