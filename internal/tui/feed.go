package tui

import (
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/fleetsim/internal/events"
	"github.com/gorilla/websocket"
)

const (
	feedLimit      = 200
	reconnectDelay = 3 * time.Second
)

func (a *App) openStream() tea.Cmd {
	done := a.done
	return func() tea.Msg {
		conn, err := a.client.Subscribe()
		if err != nil {
			return streamClosedMsg{err}
		}
		frames := make(chan EventFrame, 64)
		go pump(conn, frames, done)
		return streamOpenedMsg{frames}
	}
}

// pump forwards frames from conn until the stream fails or done is closed.
// frames is closed on return.
func pump(conn *websocket.Conn, frames chan<- EventFrame, done <-chan struct{}) {
	defer close(frames)
	exited := make(chan struct{})
	defer close(exited)
	defer conn.Close()

	// Unblock ReadJSON when done closes mid-read.
	go func() {
		select {
		case <-done:
			conn.Close()
		case <-exited:
		}
	}()

	for {
		var f EventFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		select {
		case frames <- f:
		case <-done:
			return
		}
	}
}

func waitForEvent(frames <-chan EventFrame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{f}
	}
}

func reconnectLater() tea.Cmd {
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })
}

// applyEvent folds a stream frame into the model. Telemetry updates robots
// in place; task updates and alerts are appended to the feed.
func (a *App) applyEvent(f EventFrame) {
	switch f.Type {
	case events.TopicTelemetry:
		var t events.Telemetry
		if json.Unmarshal(f.Payload, &t) != nil {
			return
		}
		for i := range a.robots {
			r := &a.robots[i]
			if r.ID != t.RobotID {
				continue
			}
			r.Pose = t.Pose
			r.Battery = t.Battery
			r.Status = t.State
			r.CurrentTaskID = t.CurrentTaskID
			r.LocalizationConfidence = t.LocalizationConfidence
			r.Speed = t.Speed
			r.LastSeen = t.Timestamp
		}
	case events.TopicTaskUpdate:
		var u events.TaskUpdate
		if json.Unmarshal(f.Payload, &u) != nil {
			return
		}
		line := fmt.Sprintf("%s %s %s %s",
			u.Timestamp.Local().Format("15:04:05"),
			lipgloss.NewStyle().Foreground(secondaryColor).Render("TASK "),
			shortID(u.TaskID), u.Message)
		a.pushFeed(line)
	case events.TopicAlert:
		var al events.Alert
		if json.Unmarshal(f.Payload, &al) != nil {
			return
		}
		line := fmt.Sprintf("%s %s %s", al.Timestamp.Local().Format("15:04:05"), formatSeverity(al.Severity), al.Message)
		a.pushFeed(line)
	case events.TopicTick:
		var t events.Tick
		if json.Unmarshal(f.Payload, &t) == nil {
			a.lastTick = t.Seq
		}
	}
}

func (a *App) pushFeed(line string) {
	a.feed = append(a.feed, line)
	if len(a.feed) > feedLimit {
		a.feed = a.feed[len(a.feed)-feedLimit:]
	}
}
