package ui

import (
	"context"
	"io"
	"os"
	"strings"

	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"whisperdesk/internal/engine"
	"whisperdesk/internal/jobs"
	"whisperdesk/internal/model"
	"whisperdesk/internal/status"
)

const recentEvents = 5

// Service is the part of pipeline.Service the TUI drives.
type Service interface {
	LoadModel(size model.ModelSize) (<-chan jobs.Outcome, error)
	SetModelSize(size model.ModelSize) (<-chan jobs.Outcome, error)
	Transcribe(path string) (<-chan jobs.Outcome, error)
	SaveTranscript(path string) (string, error)
	ClearTranscript()
	CopyTranscript(w io.Writer) error
	Transcript() model.Transcript
	ModelSize() model.ModelSize
	Device() engine.Device
	Tracker() *status.Tracker
	Runner() *jobs.Runner
}

// Options control the TUI session.
type Options struct {
	AudioPath string
	AutoLoad  bool      // load the selected model on start
	Clipboard io.Writer // receives the clipboard escape sequence; nil uses stderr
}

type Model struct {
	ctx context.Context
	svc Service

	states      <-chan status.State
	unsubscribe func()

	opts       Options
	state      status.State
	transcript model.Transcript
	size       model.ModelSize
	device     engine.Device
	notice     string
	noticeErr  bool

	events  *jobs.EventBus
	lastSeq int64
	recent  []jobs.Event

	width, height int
	styles        Styles
	spinner       spinner.Model
	bar           bubblesprogress.Model
}

func NewModel(ctx context.Context, svc Service, opts Options) Model {
	sty := defaultStyles()
	sp := spinner.New()
	sp.Style = sty.Spinner
	states, cancel := svc.Tracker().Subscribe()

	return Model{
		ctx:         ctx,
		svc:         svc,
		states:      states,
		unsubscribe: cancel,
		opts:        opts,
		size:        svc.ModelSize(),
		device:      svc.Device(),
		events:      svc.Runner().Events(),
		styles:      sty,
		spinner:     sp,
		bar: bubblesprogress.New(
			bubblesprogress.WithDefaultGradient(),
			bubblesprogress.WithWidth(40),
			bubblesprogress.WithoutPercentage(),
		),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.listenStateCmd()}
	if m.opts.AutoLoad {
		cmds = append(cmds, m.startCmd(func() (<-chan jobs.Outcome, error) {
			return m.svc.LoadModel(m.size)
		}))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if w := msg.Width - 20; w > 10 && w < 80 {
			m.bar.Width = w
		}

	case stateMsg:
		m.state = msg.S
		m.pollEvents()
		return m, m.listenStateCmd()

	case stateClosedMsg:
		return m, nil

	case outcomeMsg:
		m.pollEvents()
		if msg.O.Success {
			if tr, ok := msg.O.Result.(model.Transcript); ok {
				m.transcript = tr
			}
		}
		m.size = m.svc.ModelSize()

	case actionErrMsg:
		m.notice = msg.Err.Error()
		m.noticeErr = true

	case savedMsg:
		m.notice = "Wrote " + msg.Path
		m.noticeErr = false

	case copiedMsg:
		m.notice = "Transcript copied"
		m.noticeErr = false
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case "t", "enter":
		m.notice = ""
		path := m.opts.AudioPath
		return m, m.startCmd(func() (<-chan jobs.Outcome, error) {
			return m.svc.Transcribe(path)
		})

	case "m":
		m.notice = ""
		next := m.size.Next()
		ch, err := m.svc.SetModelSize(next)
		if err != nil {
			return m, errCmd(err)
		}
		m.size = next
		return m, waitOutcomeCmd(ch)

	case "s":
		m.notice = ""
		return m, func() tea.Msg {
			p, err := m.svc.SaveTranscript("")
			if err != nil {
				return actionErrMsg{Err: err}
			}
			return savedMsg{Path: p}
		}

	case "y":
		m.notice = ""
		w := m.opts.Clipboard
		if w == nil {
			w = os.Stderr
		}
		return m, func() tea.Msg {
			if err := m.svc.CopyTranscript(w); err != nil {
				return actionErrMsg{Err: err}
			}
			return copiedMsg{}
		}

	case "c":
		m.notice = ""
		m.svc.ClearTranscript()
		m.transcript = model.Transcript{}
	}
	return m, nil
}

// startCmd starts an operation and then waits for its outcome.
func (m Model) startCmd(start func() (<-chan jobs.Outcome, error)) tea.Cmd {
	return func() tea.Msg {
		ch, err := start()
		if err != nil {
			return actionErrMsg{Err: err}
		}
		select {
		case o := <-ch:
			return outcomeMsg{O: o}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func waitOutcomeCmd(ch <-chan jobs.Outcome) tea.Cmd {
	return func() tea.Msg {
		return outcomeMsg{O: <-ch}
	}
}

func errCmd(err error) tea.Cmd {
	return func() tea.Msg { return actionErrMsg{Err: err} }
}

func (m Model) listenStateCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return stateClosedMsg{}
		case s, ok := <-m.states:
			if !ok {
				return stateClosedMsg{}
			}
			return stateMsg{S: s}
		}
	}
}

// pollEvents pulls new job events from the bus.
func (m *Model) pollEvents() {
	if m.events == nil {
		return
	}
	for _, e := range m.events.Since(m.lastSeq) {
		m.lastSeq = e.Seq
		m.recent = append(m.recent, e)
	}
	if len(m.recent) > recentEvents {
		m.recent = append([]jobs.Event(nil), m.recent[len(m.recent)-recentEvents:]...)
	}
}

func (m Model) View() string {
	parts := []string{
		m.viewHeader(),
		m.viewStatus(),
	}
	if ev := m.viewEvents(); ev != "" {
		parts = append(parts, ev)
	}
	if tr := m.viewTranscript(); tr != "" {
		parts = append(parts, tr)
	}
	parts = append(parts, m.viewHelp())
	return strings.Join(parts, "\n\n")
}

