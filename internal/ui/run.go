package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run launches the interactive TUI and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, svc Service, opts Options) error {
	m := NewModel(ctx, svc, opts)
	defer m.unsubscribe()
	prog := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := prog.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
