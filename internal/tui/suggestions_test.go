package tui

import "testing"

func TestSuggestionsCommands(t *testing.T) {
	s := NewSuggestions()

	s.Update("/re")
	if !s.IsVisible() {
		t.Fatal("expected command suggestions")
	}
	if got := s.Selected().Text; got != "recover" {
		t.Errorf("first match = %q, want recover", got)
	}
	s.Next()
	if got := s.Selected().Text; got != "resolve" {
		t.Errorf("second match = %q, want resolve", got)
	}
	if got := s.Complete("/re"); got != "resolve " {
		t.Errorf("Complete = %q", got)
	}

	s.Update("/recover now")
	if s.IsVisible() {
		t.Error("commands should only complete the first word")
	}

	s.Update("plain text")
	if s.IsVisible() || s.Selected() != nil {
		t.Error("plain input should hide suggestions")
	}
}

func TestSuggestionsReferences(t *testing.T) {
	s := NewSuggestions()
	s.SetReferences([]SuggestionItem{
		{Text: "robot_R07", Type: "robot"},
		{Text: "robot_R10", Type: "robot"},
		{Text: "task_002", Type: "task"},
	})

	s.Update("fault slip @r1")
	if !s.IsVisible() {
		t.Fatal("expected reference suggestions")
	}
	if got := s.Complete("fault slip @r1"); got != "fault slip robot_R10 " {
		t.Errorf("Complete = %q", got)
	}

	s.Update("cancel @")
	if len(s.filtered) != 3 {
		t.Errorf("empty query should list all references, got %d", len(s.filtered))
	}
	s.Prev()
	if got := s.Selected().Text; got != "task_002" {
		t.Errorf("Prev should wrap to last, got %q", got)
	}

	s.Update("cancel @zzz")
	if s.IsVisible() {
		t.Error("no match should hide suggestions")
	}
}

func TestSuggestionsActions(t *testing.T) {
	s := NewSuggestions()
	s.Update("!speed")
	if !s.IsVisible() || len(s.filtered) != 3 {
		t.Fatalf("expected 3 speed actions, got %d", len(s.filtered))
	}
	if got := s.Complete("!speed"); got != "speed 1 " {
		t.Errorf("Complete = %q", got)
	}
}
