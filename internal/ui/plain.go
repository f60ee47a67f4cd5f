package ui

import (
	"context"
	"fmt"
	"io"

	"whisperdesk/internal/status"
)

// Plain prints tracker states as plain lines for non-interactive output.
// A line is printed only when the message or whole percent changes.
type Plain struct {
	w       io.Writer
	lastMsg string
	lastPct int
	started bool
}

func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w}
}

// Render prints s unless it repeats the previous line. It reports whether
// a line was written.
func (p *Plain) Render(s status.State) bool {
	if p.started && s.Message == p.lastMsg && s.Percent == p.lastPct {
		return false
	}
	p.started = true
	p.lastMsg, p.lastPct = s.Message, s.Percent

	line := fmt.Sprintf("[%3d%%] %s", s.Percent, s.Message)
	if s.TimeInfo != "" {
		line += " (" + s.TimeInfo + ")"
	}
	fmt.Fprintln(p.w, line)
	return true
}

// Follow renders states until stop is closed, ctx is done or the channel
// closes. On stop it renders whatever state is still pending.
func (p *Plain) Follow(ctx context.Context, states <-chan status.State, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			p.Render(s)
		case <-stop:
			select {
			case s, ok := <-states:
				if ok {
					p.Render(s)
				}
			default:
			}
			return
		}
	}
}
