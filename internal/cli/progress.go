package cli

import (
	"context"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentbrain/agentbrain/internal/client"
	"github.com/agentbrain/agentbrain/internal/models"
	"github.com/agentbrain/agentbrain/internal/service"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// jobUpdateMsg carries a job snapshot pushed by the server.
type jobUpdateMsg struct {
	snap service.JobSnapshot
}

// watchClosedMsg signals the end of the websocket stream.
type watchClosedMsg struct {
	err error
}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	jobID    string
	snap     *service.JobSnapshot
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(jobID string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return progressModel{
		jobID:    jobID,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case jobUpdateMsg:
		snap := msg.snap
		m.snap = &snap

		switch snap.Status {
		case models.JobCompleted:
			m.done = true
			return m, tea.Quit
		case models.JobFailed:
			m.done = true
			if snap.Error != nil {
				m.err = fmt.Errorf("%s", snap.Error.Message)
			} else {
				m.err = fmt.Errorf("job failed with unknown error")
			}
			return m, tea.Quit
		}
		return m, nil

	case watchClosedMsg:
		m.done = true
		if msg.err != nil {
			m.err = msg.err
		}
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.snap == nil {
		return "Waiting for job updates...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.Status))
	progressBar := m.progress.ViewAs(float64(m.snap.Progress) / 100)
	counts := fmt.Sprintf("%d/%d chunks", m.snap.ChunksProcessed, m.snap.TotalChunks)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'agentbrain jobs %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Training failed: %s\n", m.err))
	}

	if m.snap != nil && m.snap.Result != nil {
		r := m.snap.Result
		var output string
		output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
		output += fmt.Sprintf("  %s\n", r.Message)
		output += fmt.Sprintf("  Chunks stored:  %d\n", r.ChunksStored)
		output += fmt.Sprintf("  Skipped:        %d\n", m.snap.SkippedCount)
		output += fmt.Sprintf("  Errors:         %d\n", m.snap.ErrorCount)
		if len(r.Warnings) > 0 {
			output += m.theme.errorStyle().Render(fmt.Sprintf("\nWarnings (%d):\n", len(r.Warnings)))
			for _, w := range r.Warnings {
				output += fmt.Sprintf("  • %s\n", w)
			}
		}
		return output
	}

	return m.theme.completedStyle().Render("✓ Completed\n")
}

// RunJobProgress renders an interactive progress bar fed by the
// server's job watch stream. Returns nil on success or Ctrl+C
// (job continues in background), an error when the job fails.
func RunJobProgress(c *client.Client, jobID string) error {
	p := tea.NewProgram(newProgressModel(jobID))

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()

	go func() {
		_, err := c.WatchJob(watchCtx, jobID, func(snap service.JobSnapshot) error {
			p.Send(jobUpdateMsg{snap: snap})
			return nil
		})
		p.Send(watchClosedMsg{err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}
