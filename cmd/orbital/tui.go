package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/AximoxAI/orbital/internal/filestate"
	"github.com/AximoxAI/orbital/internal/taskview"
	"github.com/AximoxAI/orbital/internal/wire"
)

type tuiPane int

const (
	paneMessages tuiPane = iota
	paneConsole
	paneFiles
)

var (
	styleYou    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleBot    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	styleOther  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleStatus = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type tickMsg time.Time

type sendResultMsg struct{ err error }

type tuiModel struct {
	ctx  context.Context
	view *taskview.View

	vp      viewport.Model
	input   textinput.Model
	pane    tuiPane
	width   int
	height  int
	ready   bool
	lastErr string
}

func runTUI(ctx context.Context, view *taskview.View) error {
	input := textinput.New()
	input.Placeholder = "message the task room (@handle to address an agent)"
	input.CharLimit = 4000
	input.Focus()

	model := tuiModel{ctx: ctx, view: view, input: input}
	prog := tea.NewProgram(model, tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

func tuiTick() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tuiTick())
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := m.height - 4
		if bodyHeight < 3 {
			bodyHeight = 3
		}
		if !m.ready {
			m.vp = viewport.New(m.width, bodyHeight)
			m.ready = true
		} else {
			m.vp.Width = m.width
			m.vp.Height = bodyHeight
		}
		m.vp.SetContent(m.renderPane())
		return m, nil

	case tickMsg:
		atBottom := m.vp.AtBottom()
		m.vp.SetContent(m.renderPane())
		if atBottom {
			m.vp.GotoBottom()
		}
		return m, tuiTick()

	case sendResultMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		} else {
			m.lastErr = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			m.pane = (m.pane + 1) % 3
			m.vp.SetContent(m.renderPane())
			m.vp.GotoTop()
			return m, nil
		case "enter":
			content := strings.TrimSpace(m.input.Value())
			if content == "" {
				return m, nil
			}
			m.input.Reset()
			view := m.view
			ctx := m.ctx
			return m, func() tea.Msg {
				sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				return sendResultMsg{err: view.Send(sendCtx, wire.OutgoingMessage{Content: content})}
			}
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m tuiModel) View() string {
	if !m.ready {
		return "loading..."
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	if m.lastErr != "" {
		b.WriteString(styleErr.Render("send failed: " + m.lastErr))
	} else {
		b.WriteString(styleDim.Render("tab: switch pane | enter: send | esc: quit"))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m tuiModel) renderHeader() string {
	pane := "messages"
	switch m.pane {
	case paneConsole:
		pane = "console"
	case paneFiles:
		pane = "files"
	}
	chat := "chat: down"
	if m.view.ChatConnected() {
		chat = "chat: up"
	}
	exec := "exec: down"
	if m.view.ExecConnected() {
		exec = "exec: up"
	}
	header := fmt.Sprintf(" task %s | %s | %s | %s ", m.view.TaskID(), pane, chat, exec)
	return styleDim.Render(runewidth.Truncate(header, maxInt(m.width, 20), "..."))
}

func (m tuiModel) renderPane() string {
	switch m.pane {
	case paneConsole:
		return m.renderConsole()
	case paneFiles:
		return m.renderFiles()
	default:
		return m.renderMessages()
	}
}

func (m tuiModel) renderMessages() string {
	msgs := m.view.Messages()
	if len(msgs) == 0 {
		return styleDim.Render("no messages yet")
	}
	var b strings.Builder
	for _, msg := range msgs {
		author := msg.Author
		style := styleOther
		switch author {
		case "You":
			style = styleYou
		case "Bot":
			style = styleBot
		}
		label := runewidth.FillRight(author, 12)
		ts := msg.DisplayTime()
		if ts != "" {
			b.WriteString(styleDim.Render(ts) + " ")
		}
		b.WriteString(style.Render(label))
		b.WriteString(" ")
		b.WriteString(msg.Content)
		if len(msg.Mentions) > 0 {
			b.WriteString(" " + styleStatus.Render("→ "+strings.Join(msg.Mentions, ", ")))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m tuiModel) renderConsole() string {
	var b strings.Builder
	if live := m.view.LiveValue(); live != "" {
		b.WriteString(styleStatus.Render("live: "+live) + "\n\n")
	}
	for _, line := range m.view.Console() {
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteString("\n")
		}
	}
	if summary := m.view.Summary(); summary != "" {
		b.WriteString("\n" + styleStatus.Render("summary:") + "\n" + summary + "\n")
	}
	if b.Len() == 0 {
		return styleDim.Render("no execution output yet")
	}
	return b.String()
}

func (m tuiModel) renderFiles() string {
	root := m.view.Tree()
	if root == nil || len(root.Children) == 0 {
		return styleDim.Render("no files yet")
	}
	var b strings.Builder
	renderTree(&b, root, 0)
	return b.String()
}

func renderTree(b *strings.Builder, node *filestate.Node, depth int) {
	for _, child := range node.Children {
		indent := strings.Repeat("  ", depth)
		if child.Kind == filestate.NodeFolder {
			b.WriteString(indent + styleOther.Render(child.Name+"/") + "\n")
			renderTree(b, child, depth+1)
		} else {
			b.WriteString(indent + child.Name + "\n")
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
