package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/botfleet/internal/application"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type batchesDoneMsg struct{}

// batchSpinnerModel shows one progress line per running batch until every
// handle is done.
type batchSpinnerModel struct {
	spinner spinner.Model
	handles []*application.Handle
	wait    tea.Cmd
	done    bool
}

func newBatchSpinnerModel(handles []*application.Handle, wait tea.Cmd) batchSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return batchSpinnerModel{
		spinner: s,
		handles: handles,
		wait:    wait,
	}
}

func (m batchSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.wait)
}

func (m batchSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case batchesDoneMsg:
		m.done = true
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m batchSpinnerModel) View() string {
	if m.done {
		return ""
	}

	lines := make([]string, 0, len(m.handles))
	for _, handle := range m.handles {
		lines = append(lines, fmt.Sprintf("%s %s", m.spinner.View(), progressLabel(handle)))
	}
	return strings.Join(lines, "\n")
}

func progressLabel(handle *application.Handle) string {
	snapshot := handle.Batch().Snapshot()

	select {
	case <-handle.Done():
		return fmt.Sprintf("%s %s: %s", snapshot.Kind, snapshot.Target.ID, snapshot.Status)
	default:
	}

	label := fmt.Sprintf("%s %s: %d/%d", snapshot.Kind, snapshot.Target.ID, snapshot.CurrentIteration+1, snapshot.Amount)
	if snapshot.RetryAttempt > 0 {
		label += fmt.Sprintf(" (retry %d)", snapshot.RetryAttempt)
	}
	return label
}

// runBatchSpinner renders progress on output until every handle is done or
// ctx ends.
func runBatchSpinner(ctx context.Context, output io.Writer, handles []*application.Handle) error {
	waitCmd := func() tea.Msg {
		for _, handle := range handles {
			select {
			case <-handle.Done():
			case <-ctx.Done():
				return batchesDoneMsg{}
			}
		}
		return batchesDoneMsg{}
	}

	p := tea.NewProgram(
		newBatchSpinnerModel(handles, waitCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	if _, ok := finalModel.(batchSpinnerModel); !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return nil
}
