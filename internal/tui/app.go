// Package tui provides the interactive terminal monitor for fleetsim.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/sim"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cyanColor)

	itemStyle = lipgloss.NewStyle()

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// DefaultRefreshInterval is how often the monitor polls the API.
const DefaultRefreshInterval = 2 * time.Second

// App is the main TUI application model.
type App struct {
	client      *Client
	robots      []models.Robot
	tasks       []models.Task
	alerts      []models.Alert
	stats       *sim.Stats
	feed        []string
	lastTick    uint64
	view        view
	selectedIdx int
	filterIdx   int
	detail      bool
	input       textinput.Model
	width       int
	height      int
	message     string
	online      bool
	streaming   bool
	suggestions *Suggestions
	refresh     time.Duration
	frames      <-chan EventFrame
	// closed when the program exits; stops the stream reader
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	ti := textinput.New()
	ti.Placeholder = "Type: fault slip | recover | cancel | add <from>, <to>, <payload> | speed 5 | /help"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	return &App{
		client:      NewClient(apiAddr),
		input:       ti,
		suggestions: NewSuggestions(),
		refresh:     DefaultRefreshInterval,
		width:       100,
		height:      30,
		done:        make(chan struct{}),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	a.Close()
	return err
}

// Close stops the event stream reader. It is safe to call more than once.
func (a *App) Close() {
	a.doneOnce.Do(func() { close(a.done) })
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetch(true),
		a.openStream(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.input.Value() != "" {
				a.input.SetValue("")
				a.suggestions.Update("")
				return a, nil
			}
			a.detail = false
			return a, nil

		case "up":
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
			} else if a.selectedIdx > 0 {
				a.selectedIdx--
			}
			return a, nil

		case "down":
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
			} else if a.selectedIdx < a.listLen()-1 {
				a.selectedIdx++
			}
			return a, nil

		case "tab":
			if a.suggestions.IsVisible() {
				a.input.SetValue(a.suggestions.Complete(a.input.Value()))
				a.input.CursorEnd()
				a.suggestions.Update("")
				return a, nil
			}
			a.switchView((a.view + 1) % view(len(viewNames)))
			return a, nil

		case "shift+tab":
			a.switchView((a.view + view(len(viewNames)) - 1) % view(len(viewNames)))
			return a, nil

		case "ctrl+f":
			if a.view == viewTasks {
				a.filterIdx = (a.filterIdx + 1) % len(taskFilters)
				a.selectedIdx = 0
			}
			return a, nil

		case "ctrl+r":
			return a, a.fetch(false)

		case "enter":
			if a.suggestions.IsVisible() {
				a.input.SetValue(a.suggestions.Complete(a.input.Value()))
				a.input.CursorEnd()
				a.suggestions.Update("")
				return a, nil
			}
			input := strings.TrimSpace(a.input.Value())
			a.input.SetValue("")
			if input == "" {
				if a.view == viewRobots || a.view == viewTasks {
					a.detail = !a.detail
				}
				return a, nil
			}
			return a, a.execute(input)
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6

	case snapshotMsg:
		a.online = true
		a.robots = msg.robots
		a.tasks = msg.tasks
		a.alerts = msg.alerts
		a.stats = msg.stats
		a.clampSelection()
		a.suggestions.SetReferences(a.references())
		if msg.scheduled {
			return a, a.poll()
		}
		return a, nil

	case fetchFailedMsg:
		a.online = false
		a.message = "Error: " + msg.err.Error()
		if msg.scheduled {
			return a, a.poll()
		}
		return a, nil

	case pollMsg:
		return a, a.fetch(true)

	case streamOpenedMsg:
		a.streaming = true
		a.frames = msg.frames
		return a, waitForEvent(a.frames)

	case streamClosedMsg:
		a.streaming = false
		a.frames = nil
		return a, reconnectLater()

	case reconnectMsg:
		return a, a.openStream()

	case eventMsg:
		a.applyEvent(msg.frame)
		return a, waitForEvent(a.frames)

	case commandResultMsg:
		a.message = msg.message
		return a, a.fetch(false)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.suggestions.Update(a.input.Value())

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemon := onlineStyle.Render("● DAEMON")
	if !a.online {
		daemon = offlineStyle.Render("○ DAEMON")
	}
	simState := lipgloss.NewStyle().Foreground(mutedColor).Render("sim: -")
	if a.stats != nil {
		state := offlineStyle.Render("paused")
		if a.stats.Running {
			state = onlineStyle.Render("running")
		}
		simState = fmt.Sprintf("sim: %s %s", state,
			lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("%gx  tick %d", a.stats.SpeedMultiplier, a.lastTick)))
	}

	header := titleStyle.Render("FLEETSIM Monitor") + "  " + daemon + "  " + simState
	b.WriteString(header + "\n")
	b.WriteString(a.renderTabs() + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	contentHeight := max(a.height-9, 5)
	switch {
	case a.detail && a.view == viewRobots && a.selectedIdx < len(a.robots):
		b.WriteString(a.renderRobotDetail(a.robots[a.selectedIdx]))
	case a.detail && a.view == viewTasks && a.selectedIdx < len(a.visibleTasks()):
		b.WriteString(a.renderTaskDetail(a.visibleTasks()[a.selectedIdx]))
	case a.view == viewRobots:
		b.WriteString(a.renderRobotList(contentHeight))
	case a.view == viewTasks:
		b.WriteString(a.renderTaskList(contentHeight))
	case a.view == viewAlerts:
		b.WriteString(a.renderAlertList(contentHeight))
	case a.view == viewEvents:
		b.WriteString(a.renderEventFeed(contentHeight))
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))

	// Suggestions render below the input.
	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	status := fmt.Sprintf(" %s: %d | ↑↓:nav | Tab:view | Enter:detail | Ctrl+R:refresh | Ctrl+C:quit",
		viewNames[a.view], a.listLen())
	if a.view == viewTasks {
		status += " | Ctrl+F:filter"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) renderTabs() string {
	tabs := make([]string, len(viewNames))
	for i, name := range viewNames {
		label := name
		if view(i) == viewAlerts {
			if n := a.openAlerts(); n > 0 {
				label = fmt.Sprintf("%s (%d)", name, n)
			}
		}
		if view(i) == a.view {
			tabs[i] = selectedStyle.Padding(0, 1).Render(label)
		} else {
			tabs[i] = helpStyle.Padding(0, 1).Render(label)
		}
	}
	return " " + strings.Join(tabs, " ")
}

func (a *App) switchView(v view) {
	a.view = v
	a.selectedIdx = 0
	a.detail = false
}

func (a *App) listLen() int {
	switch a.view {
	case viewRobots:
		return len(a.robots)
	case viewTasks:
		return len(a.visibleTasks())
	case viewAlerts:
		return len(a.alerts)
	}
	return len(a.feed)
}

func (a *App) clampSelection() {
	if n := a.listLen(); a.selectedIdx >= n {
		a.selectedIdx = max(0, n-1)
	}
}

func (a *App) openAlerts() int {
	n := 0
	for _, al := range a.alerts {
		if !al.Acknowledged {
			n++
		}
	}
	return n
}

// selection returns the IDs under the cursor. A selected task also selects
// its robot.
func (a *App) selection() selection {
	var sel selection
	switch a.view {
	case viewRobots:
		if a.selectedIdx < len(a.robots) {
			r := a.robots[a.selectedIdx]
			sel.RobotID = r.ID
			sel.TaskID = r.CurrentTaskID
		}
	case viewTasks:
		if tasks := a.visibleTasks(); a.selectedIdx < len(tasks) {
			sel.TaskID = tasks[a.selectedIdx].ID
			sel.RobotID = tasks[a.selectedIdx].AssignedRobot
		}
	case viewAlerts:
		if a.selectedIdx < len(a.alerts) {
			sel.AlertID = a.alerts[a.selectedIdx].ID
			sel.RobotID = a.alerts[a.selectedIdx].RobotID
		}
	}
	return sel
}

func (a *App) references() []SuggestionItem {
	refs := make([]SuggestionItem, 0, len(a.robots)+len(a.tasks))
	for _, r := range a.robots {
		refs = append(refs, SuggestionItem{Text: r.ID, Description: fmt.Sprintf("%s (%s)", r.Name, r.Status), Type: "robot"})
	}
	for _, t := range a.tasks {
		if t.Status.Terminal() {
			continue
		}
		refs = append(refs, SuggestionItem{Text: t.ID, Description: t.FromZone + " → " + t.ToZone, Type: "task"})
	}
	for _, al := range a.alerts {
		if !al.Acknowledged {
			refs = append(refs, SuggestionItem{Text: al.ID, Description: al.Message, Type: "alert"})
		}
	}
	return refs
}

func (a *App) execute(input string) tea.Cmd {
	switch strings.Fields(input)[0] {
	case "q", "quit", "exit":
		return tea.Quit
	case "refresh":
		return a.fetch(false)
	case "/help", "help":
		a.message = "Commands: " + commandList()
		return nil
	}

	sel := a.selection()
	return func() tea.Msg {
		result, err := runCommand(a.client, input, sel)
		if err != nil {
			return commandResultMsg{"Error: " + err.Error()}
		}
		return commandResultMsg{result}
	}
}

func commandList() string {
	names := make([]string, len(commandSuggestions))
	for i, s := range commandSuggestions {
		names[i] = s.Text
	}
	return strings.Join(names, ", ")
}

// fetch loads robots, tasks, alerts and stats. A scheduled fetch arms the
// next poll when it completes, so exactly one poll chain runs.
func (a *App) fetch(scheduled bool) tea.Cmd {
	return func() tea.Msg {
		robots, err := a.client.ListRobots()
		if err != nil {
			return fetchFailedMsg{err, scheduled}
		}
		tasks, err := a.client.ListTasks("")
		if err != nil {
			return fetchFailedMsg{err, scheduled}
		}
		alerts, err := a.client.ListAlerts()
		if err != nil {
			return fetchFailedMsg{err, scheduled}
		}
		stats, err := a.client.Stats()
		if err != nil {
			return fetchFailedMsg{err, scheduled}
		}
		return snapshotMsg{robots: robots, tasks: tasks, alerts: alerts, stats: stats, scheduled: scheduled}
	}
}

func (a *App) poll() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}
