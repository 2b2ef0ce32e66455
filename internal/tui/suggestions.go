package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for commands and entity references.
type Suggestions struct {
	items       []SuggestionItem
	refs        []SuggestionItem
	filtered    []SuggestionItem
	selectedIdx int
	visible     bool
	prefix      string // "/", "@", or "!"
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
	Type        string // "command", "robot", "task", "alert", "action"
}

var commandSuggestions = []SuggestionItem{
	{Text: "add", Description: "Queue a delivery: add <from>, <to>, <payload>[, <priority>]", Type: "command"},
	{Text: "cancel", Description: "Cancel the selected task", Type: "command"},
	{Text: "assign", Description: "Assign the selected task to a robot", Type: "command"},
	{Text: "fault", Description: "Inject a fault: slip, loc or battery", Type: "command"},
	{Text: "recover", Description: "Attempt recovery of the selected robot", Type: "command"},
	{Text: "status", Description: "Override a robot's status", Type: "command"},
	{Text: "ack", Description: "Acknowledge the selected alert", Type: "command"},
	{Text: "resolve", Description: "Resolve the selected alert", Type: "command"},
	{Text: "speed", Description: "Set the simulation speed multiplier", Type: "command"},
	{Text: "start", Description: "Start the simulation", Type: "command"},
	{Text: "stop", Description: "Pause the simulation", Type: "command"},
}

var actionSuggestions = []SuggestionItem{
	{Text: "speed 1", Description: "Real time", Type: "action"},
	{Text: "speed 5", Description: "Fast forward", Type: "action"},
	{Text: "speed 20", Description: "Soak test", Type: "action"},
	{Text: "stop", Description: "Pause all robots", Type: "action"},
	{Text: "start", Description: "Resume", Type: "action"},
}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

// SetReferences replaces the entity IDs offered after @.
func (s *Suggestions) SetReferences(refs []SuggestionItem) {
	s.refs = refs
}

// Update updates suggestions based on current input. Commands and actions
// complete at the start of the line, references complete the last word.
func (s *Suggestions) Update(input string) {
	s.visible = false
	s.filtered = nil
	s.prefix = ""
	if input == "" {
		return
	}

	word := lastWord(input)
	switch {
	case strings.HasPrefix(input, "/") && !strings.Contains(input, " "):
		s.prefix = "/"
		s.items = commandSuggestions
		s.filter(strings.TrimPrefix(input, "/"))
	case strings.HasPrefix(input, "!"):
		s.prefix = "!"
		s.items = actionSuggestions
		s.filter(strings.TrimPrefix(input, "!"))
	case strings.HasPrefix(word, "@"):
		s.prefix = "@"
		s.items = s.refs
		s.filter(strings.TrimPrefix(word, "@"))
	default:
		return
	}
	s.visible = true
}

// Complete returns input with the selected suggestion applied.
func (s *Suggestions) Complete(input string) string {
	sel := s.Selected()
	if sel == nil {
		return input
	}
	if s.prefix == "@" {
		return strings.TrimSuffix(input, lastWord(input)) + sel.Text + " "
	}
	return sel.Text + " "
}

func lastWord(input string) string {
	if i := strings.LastIndexByte(input, ' '); i >= 0 {
		return input[i+1:]
	}
	return input
}

func (s *Suggestions) filter(query string) {
	query = strings.ToLower(query)
	s.selectedIdx = 0
	if query == "" {
		s.filtered = s.items
		return
	}

	s.filtered = []SuggestionItem{}
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.visible || len(s.filtered) == 0 || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	suggestionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	itemStyle := lipgloss.NewStyle().Foreground(fgColor)
	descStyle := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	var header string
	switch s.prefix {
	case "/":
		header = "Commands"
	case "@":
		header = "References"
	case "!":
		header = "Quick Actions"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	// Show max 5 suggestions
	maxVisible := 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}

		var line string
		if i == s.selectedIdx {
			line = selectedStyle.Render("▶ " + item.Text)
			if item.Description != "" {
				line += " " + selectedStyle.Render(item.Description)
			}
		} else {
			line = itemStyle.Render("  " + item.Text)
			if item.Description != "" {
				line += " " + descStyle.Render(item.Description)
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return suggestionStyle.Render(b.String())
}
