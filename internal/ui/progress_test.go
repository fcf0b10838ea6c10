package ui

import (
	"math"
	"strings"
	"testing"

	"abilower/internal/tablefile"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short.toml", 20, "short.toml"},
		{"tables/very/long/path.toml", 12, "tables..."},
		{"abcdef", 3, "abc"},
		{"表格表格表格", 8, "表..."},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestProgressTracksEvents(t *testing.T) {
	files := []string{"a.toml", "b.toml"}
	events := make(chan tablefile.Event)
	m := NewProgressModel("loading tables", files, events).(*progressModel)

	m.applyEvent(tablefile.Event{File: "a.toml", Status: tablefile.StatusDone})
	m.applyEvent(tablefile.Event{File: "b.toml", Status: tablefile.StatusBuilding})
	m.applyEvent(tablefile.Event{File: "unknown.toml", Status: tablefile.StatusError})

	if got, want := m.fraction(), 0.85; math.Abs(got-want) > 1e-9 {
		t.Fatalf("fraction = %v, want %v", got, want)
	}
	view := m.View()
	for _, want := range []string{"loading tables", "a.toml", "b.toml", "done", "building"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "unknown.toml") {
		t.Errorf("view shows a file that was never queued:\n%s", view)
	}
}
