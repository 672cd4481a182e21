package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// TUIRenderer shows rebuild progress with a live terminal UI.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *rebuildModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer; it fails on non-TTY output so
// the caller can fall back to plain mode.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a terminal")
	}
	model := newRebuildModel(cfg.VaultDir)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.send(progressMsg(event))
}

func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.send(errorMsg(event))
}

func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.send(completeMsg(stats))
}

func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()
	if program == nil {
		return nil
	}
	program.Quit()
	<-r.done
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(msg)
	}
}

type (
	progressMsg ProgressEvent
	errorMsg    ErrorEvent
	completeMsg CompletionStats
)

// rebuildModel is the bubbletea model for one rebuild.
type rebuildModel struct {
	styles   Styles
	vaultDir string

	spinner  spinner.Model
	bar      progress.Model
	event    ProgressEvent
	errors   []ErrorEvent
	stats    CompletionStats
	finished bool
}

func newRebuildModel(vaultDir string) *rebuildModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &rebuildModel{
		styles:   DefaultStyles(),
		vaultDir: vaultDir,
		spinner:  sp,
		bar:      progress.New(progress.WithDefaultGradient()),
	}
}

func (m *rebuildModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *rebuildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.event = ProgressEvent(msg)
		return m, nil
	case errorMsg:
		m.errors = append(m.errors, ErrorEvent(msg))
		return m, nil
	case completeMsg:
		m.stats = CompletionStats(msg)
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m *rebuildModel) View() string {
	var b strings.Builder

	header := "notescout index"
	if m.vaultDir != "" {
		header += " " + m.styles.Dim.Render(m.vaultDir)
	}
	b.WriteString(m.styles.Header.Render(header) + "\n\n")

	if m.finished {
		b.WriteString(m.styles.Success.Render(fmt.Sprintf(
			"Complete: %d notes, %d records in %s",
			m.stats.Files, m.stats.Records, m.stats.Duration.Round(100*time.Millisecond))) + "\n")
	} else {
		line := fmt.Sprintf("%s %s %s",
			m.spinner.View(),
			m.styles.Label.Render(m.event.Stage.String()),
			m.event.CurrentFile)
		b.WriteString(line + "\n")
		if m.event.Total > 0 {
			pct := float64(m.event.Current) / float64(m.event.Total)
			b.WriteString(m.bar.ViewAs(pct) + "\n")
		}
	}

	for _, e := range tailErrors(m.errors, 5) {
		style := m.styles.Error
		if e.IsWarn {
			style = m.styles.Warning
		}
		b.WriteString(style.Render(fmt.Sprintf("  %s: %v", e.File, e.Err)) + "\n")
	}
	return b.String()
}

func tailErrors(errs []ErrorEvent, n int) []ErrorEvent {
	if len(errs) <= n {
		return errs
	}
	return errs[len(errs)-n:]
}
