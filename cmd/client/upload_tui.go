package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/lumensite/lumen/internal/lumensdk"
)

const (
	maxBarWidth   = 48
	txtUploadHelp = "'Ctrl+C' to cancel"
)

type uploadModel struct {
	task    *lumensdk.UploadTask
	name    string
	bar     progress.Model
	spinner spinner.Model

	last      lumensdk.Progress
	canceling bool
	done      bool
	artifact  *lumensdk.Artifact
	err       error
}

// --- Messages ---
type progressMsg lumensdk.Progress
type uploadDoneMsg struct {
	artifact *lumensdk.Artifact
	err      error
}

func newUploadModel(task *lumensdk.UploadTask, name string) uploadModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = maxBarWidth

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return uploadModel{
		task:    task,
		name:    name,
		bar:     bar,
		spinner: s,
	}
}

// waitProgress blocks for the next progress value, or the result once the task ends
func waitProgress(task *lumensdk.UploadTask) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-task.Progress()
		if !ok {
			artifact, err := task.Wait()
			return uploadDoneMsg{artifact: artifact, err: err}
		}
		return progressMsg(p)
	}
}

func (m uploadModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitProgress(m.task))
}

func (m uploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			// the result still arrives through uploadDoneMsg
			m.canceling = true
			m.task.Cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(maxBarWidth, max(10, msg.Width-len(m.name)-32))
		return m, nil

	case progressMsg:
		m.last = lumensdk.Progress(msg)
		return m, waitProgress(m.task)

	case uploadDoneMsg:
		m.done = true
		m.artifact, m.err = msg.artifact, msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m uploadModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(m.name)
	b.WriteString(" ")
	b.WriteString(m.bar.ViewAs(float64(m.last.Percent) / 100))
	b.WriteString(gray.Render(fmt.Sprintf(" %s/%s", humanize.IBytes(uint64(m.last.BytesSent)), humanize.IBytes(uint64(m.last.TotalBytes)))))
	b.WriteString("\n")
	if m.canceling {
		b.WriteString(red.Render("canceling..."))
	} else {
		b.WriteString(gray.Render(txtUploadHelp))
	}
	b.WriteString("\n")
	return b.String()
}
