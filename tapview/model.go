// Package tapview implements the bubbletea TUI that watches a tapsrv
// server and displays captured operations as they arrive.
package tapview

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/motoki-oss/docdb/clipboard"
	"github.com/motoki-oss/docdb/tapsrv"
	"github.com/motoki-oss/docdb/taplog"
	"github.com/motoki-oss/docdb/transport"
	"github.com/motoki-oss/docdb/wire"
)

type viewMode int

const (
	viewList viewMode = iota
	viewInspect
)

// Model is the Bubble Tea model for docdb-view.
type Model struct {
	target string
	conn   transport.Transport

	events []taplog.Event
	cursor int
	follow bool
	width  int
	height int
	err    error
	view   viewMode

	inspectScroll int
}

type eventMsg struct{ Event taplog.Event }
type errMsg struct{ Err error }
type connectedMsg struct{ conn transport.Transport }

// New creates a Model that will dial target (a tapsrv.Server address).
func New(target string) Model {
	return Model{target: target, follow: true}
}

// Init starts the connection to the tap server.
func (m Model) Init() tea.Cmd {
	return connect(m.target)
}

func connect(target string) tea.Cmd {
	return func() tea.Msg {
		conn, err := transport.TCPDialer(5 * time.Second)(context.Background(), target)
		if err != nil {
			return errMsg{Err: fmt.Errorf("dial %s: %w", target, err)}
		}
		return connectedMsg{conn: conn}
	}
}

func recvEvent(conn transport.Transport) tea.Cmd {
	return func() tea.Msg {
		msg, err := wire.Receive(conn)
		if err != nil {
			return errMsg{Err: err}
		}
		if msg.Header.OpCode != tapsrv.OpTapEvent {
			return recvEvent(conn)()
		}
		ev, err := tapsrv.DecodeEvent(msg.Body)
		if err != nil {
			return errMsg{Err: err}
		}
		return eventMsg{Event: ev}
	}
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case connectedMsg:
		m.conn = msg.conn
		return m, recvEvent(msg.conn)

	case eventMsg:
		m.events = append(m.events, msg.Event)
		if m.follow {
			m.cursor = max(len(m.events)-1, 0)
		}
		return m, recvEvent(m.conn)

	case errMsg:
		m.err = msg.Err
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case viewInspect:
			return m.updateInspect(msg)
		case viewList:
			return m.updateList(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.conn != nil {
			_ = m.conn.Close()
		}
		return m, tea.Quit
	case "enter":
		if len(m.events) > 0 {
			m.view = viewInspect
			m.inspectScroll = 0
		}
		return m, nil
	case "y":
		return m.copyRendered(), nil
	case "j", "down":
		if len(m.events) > 0 && m.cursor < len(m.events)-1 {
			m.cursor++
		}
		m.follow = m.cursor == len(m.events)-1
		return m, nil
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
			m.follow = false
		}
		return m, nil
	}
	return m, nil
}

func (m Model) updateInspect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.view = viewList
		return m, nil
	case "y":
		return m.copyRendered(), nil
	case "j", "down":
		m.inspectScroll++
		return m, nil
	case "k", "up":
		if m.inspectScroll > 0 {
			m.inspectScroll--
		}
		return m, nil
	}
	return m, nil
}

func (m Model) copyRendered() Model {
	if m.cursor < 0 || m.cursor >= len(m.events) {
		return m
	}
	_ = clipboard.Copy(context.Background(), m.events[m.cursor].Rendered)
	return m
}
