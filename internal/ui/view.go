package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"whisperdesk/internal/jobs"
	"whisperdesk/internal/pipeline"
)

const previewLines = 8

func (m Model) viewHeader() string {
	title := m.styles.Title.Render("whisperdesk · local speech-to-text")
	file := m.opts.AudioPath
	if file == "" {
		file = "(none)"
	}
	sub := m.styles.Subtitle.Render(fmt.Sprintf("Model: %s • Hardware: %s • File: %s",
		m.size, m.device.Label(), truncate(file, 40)))
	return title + "\n" + sub
}

func (m Model) viewStatus() string {
	s := m.state
	msg := m.statusStyle(s.Message).Render(s.Message)
	if s.Processing {
		msg = m.styles.Spinner.Render(m.spinner.View()) + " " + msg
	}

	bar := fmt.Sprintf("%s %3d%%", m.bar.ViewAs(s.Fraction), s.Percent)
	if s.TimeInfo != "" {
		bar += "  " + m.styles.TimeInfo.Render(s.TimeInfo)
	}

	out := msg + "\n" + bar
	if m.notice != "" {
		st := m.styles.Faint
		if m.noticeErr {
			st = m.styles.Warning
		}
		out += "\n" + st.Render(m.notice)
	}
	return m.styles.Box.Render(out)
}

func (m Model) statusStyle(msg string) lipgloss.Style {
	switch {
	case strings.HasPrefix(msg, "Error"):
		return m.styles.Error
	case msg == pipeline.MsgLargeWarning:
		return m.styles.Warning
	case strings.HasPrefix(msg, "Transcription completed"),
		strings.HasPrefix(msg, "Loaded in"),
		strings.HasPrefix(msg, "Saved"),
		msg == pipeline.MsgCopied:
		return m.styles.Success
	}
	return m.styles.Status
}

func (m Model) viewEvents() string {
	if len(m.recent) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.Header.Render("Recent jobs"))
	for _, e := range m.recent {
		b.WriteString("\n")
		b.WriteString(m.eventLine(e))
	}
	return b.String()
}

func (m Model) eventLine(e jobs.Event) string {
	cat := m.styles.CatTrans
	if e.Category == jobs.CategoryLoad {
		cat = m.styles.CatLoad
	}
	id := e.JobID
	if len(id) > 8 {
		id = id[:8]
	}

	var mark string
	switch e.Type {
	case jobs.EventSucceeded:
		mark = m.styles.Success.Render("✓")
	case jobs.EventFailed:
		mark = m.styles.Error.Render("✗")
	default:
		mark = m.styles.Faint.Render("•")
	}

	line := fmt.Sprintf("  %s %s %s %s", mark,
		e.Timestamp.Local().Format("15:04:05"),
		cat.Render(fmt.Sprintf("%-10s", e.Category)),
		m.styles.Faint.Render(id))
	if e.Message != "" {
		line += "  " + truncate(e.Message, 48)
	}
	return line
}

func (m Model) viewTranscript() string {
	text := strings.TrimSpace(m.transcript.Text)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > previewLines {
		lines = append(lines[:previewLines], "…")
	}
	width := 76
	if m.width > 10 && m.width-6 < width {
		width = m.width - 6
	}
	for i, l := range lines {
		lines[i] = truncate(l, width)
	}
	head := m.styles.Header.Render("Transcript") + " " +
		m.styles.Faint.Render(fmt.Sprintf("(%s, %.1fs)", m.transcript.Size, m.transcript.Elapsed.Seconds()))
	return head + "\n" + m.styles.Transcript.Render(strings.Join(lines, "\n"))
}

func (m Model) viewHelp() string {
	return m.styles.Faint.Render("t: transcribe • m: model • s: save • y: copy • c: clear • q: quit")
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
