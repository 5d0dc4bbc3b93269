// internal/tui/app.go
//
// This is the interactive front end for packsync.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the App struct below
// 2. Update: reacts to keys, poll ticks and animation frames
// 3. View: renders the job menu, progress and the activity log
//
// A run executes on the pipeline's worker goroutine. The App never blocks on
// it: every pollInterval it drains whatever messages the run has produced.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/kingrea/packsync/internal/config"
	"github.com/kingrea/packsync/internal/logbook"
	"github.com/kingrea/packsync/internal/pipeline"
)

const (
	pollInterval = 100 * time.Millisecond
	logLines     = 8
	menuHeight   = 12
)

// pollMsg asks the App to drain the current run's channel.
type pollMsg struct{}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogger sets the structured logger handed to the pipeline.
func WithLogger(logger *zap.Logger) AppOption {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLogbook overrides the activity log, which defaults to
// <logs>/activity.log.
func WithLogbook(book *logbook.Logbook) AppOption {
	return func(a *App) {
		if book != nil {
			a.logbook = book
		}
	}
}

// jobItem implements list.Item for the job menu.
type jobItem struct {
	job   pipeline.Job
	title string
	desc  string
}

func (i jobItem) Title() string       { return i.title }
func (i jobItem) Description() string { return i.desc }
func (i jobItem) FilterValue() string { return i.title }

func jobItems() []list.Item {
	return []list.Item{
		jobItem{job: pipeline.JobPack, title: "Atualizar A14", desc: "Reformatar o relatório A14 e gravar nas bases"},
		jobItem{job: pipeline.JobModels, title: "Converter modelos", desc: "Filtrar os relatórios de modelo em planilhas"},
		jobItem{job: pipeline.JobAll, title: "Executar tudo", desc: "A14 e depois os modelos"},
	}
}

// App is the main application model.
type App struct {
	config  *config.Config
	logger  *zap.Logger
	logbook *logbook.Logbook
	runner  *pipeline.Runner

	menu     list.Model
	progress progress.Model
	spinner  spinner.Model

	// run state
	running bool
	msgs    <-chan pipeline.Message
	job     pipeline.Job
	last    *pipeline.Done

	statusMsg string
	width     int
	height    int
}

// NewApp creates a new App for the project described by cfg.
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	menu := list.New(jobItems(), list.NewDefaultDelegate(), 60, menuHeight)
	menu.Title = "Tarefas"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	menu.SetShowHelp(false)
	menu.DisableQuitKeybindings()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	app := &App{
		config:    cfg,
		logger:    zap.NewNop(),
		menu:      menu,
		progress:  progress.New(progress.WithDefaultGradient()),
		spinner:   spin,
		statusMsg: "Enter ou p inicia a tarefa selecionada · q sai",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.logbook == nil {
		book, err := logbook.New(filepath.Join(cfg.LogsDir(), logbook.FileName))
		if err != nil {
			return nil, fmt.Errorf("tui: open activity log: %w", err)
		}
		app.logbook = book
	}
	app.runner = pipeline.New(cfg, pipeline.Options{Logger: app.logger})
	app.logbook.Info("Sessão aberta em %s", cfg.ProjectDir)
	return app, nil
}

// Running reports whether a run is in progress.
func (a *App) Running() bool { return a.running }

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.menu.SetSize(max(20, msg.Width-8), menuHeight)
		a.progress.Width = max(20, msg.Width-12)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "q", "esc":
			if a.running {
				a.statusMsg = "Aguarde o término do processamento."
				return a, nil
			}
			return a, tea.Quit
		case "enter", "p":
			return a, a.start()
		}

	case pollMsg:
		return a, a.poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case progress.FrameMsg:
		model, cmd := a.progress.Update(msg)
		if pm, ok := model.(progress.Model); ok {
			a.progress = pm
		}
		return a, cmd
	}

	var cmd tea.Cmd
	a.menu, cmd = a.menu.Update(msg)
	return a, cmd
}

// start launches the selected job unless one is already running.
func (a *App) start() tea.Cmd {
	if a.running {
		return nil
	}
	item, ok := a.menu.SelectedItem().(jobItem)
	if !ok {
		return nil
	}
	a.running = true
	a.job = item.job
	a.last = nil
	a.statusMsg = fmt.Sprintf("Executando: %s", item.title)
	a.logbook.Info("Iniciando: %s", item.title)
	a.msgs = a.runner.Start(item.job)
	return tea.Batch(a.progress.SetPercent(0), schedulePoll())
}

// poll drains the run's channel without blocking and reschedules itself
// while the run is alive.
func (a *App) poll() tea.Cmd {
	if a.msgs == nil {
		return nil
	}
	var cmds []tea.Cmd
	for {
		select {
		case m, ok := <-a.msgs:
			if !ok {
				a.msgs = nil
				a.running = false
				return tea.Batch(cmds...)
			}
			if cmd := a.apply(m); cmd != nil {
				cmds = append(cmds, cmd)
			}
		default:
			cmds = append(cmds, schedulePoll())
			return tea.Batch(cmds...)
		}
	}
}

func (a *App) apply(m pipeline.Message) tea.Cmd {
	switch m := m.(type) {
	case pipeline.Status:
		a.logbook.Append(m.Level, m.Text)
		a.statusMsg = m.Text
	case pipeline.Progress:
		return a.progress.SetPercent(float64(m.Percent) / 100)
	case pipeline.Done:
		done := m
		a.last = &done
		if m.OK {
			a.statusMsg = "Concluído."
		} else {
			a.statusMsg = "Processamento interrompido. Veja o log."
		}
	}
	return nil
}

func schedulePoll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ PACKSYNC")
	body := lipgloss.JoinVertical(lipgloss.Left,
		a.menu.View(),
		"",
		a.renderRunLine(),
		a.progress.View(),
	)
	mainBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-4)).
		Render(body)

	sections := []string{header, mainBox}
	if logPanel := a.renderLogPanel(width - 4); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderRunLine() string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	switch {
	case a.running:
		return fmt.Sprintf("%s %s", a.spinner.View(), dim.Render("Processando "+string(a.job)+"..."))
	case a.last == nil:
		return dim.Render("Pronto.")
	case a.last.OK:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Render("✓ Última execução concluída")
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render("✗ Última execução falhou")
	}
}

func (a *App) renderLogPanel(width int) string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s · %d entradas", fileName, total))
	rendered := make([]string, len(lines))
	for i, line := range lines {
		rendered[i] = styleForLine(line).Render(line)
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width)).
		Render(fmt.Sprintf("%s\n%s", head, strings.Join(rendered, "\n")))
}

func styleForLine(line string) lipgloss.Style {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	switch {
	case strings.Contains(line, " "+string(logbook.LevelError)+" "):
		return style.Foreground(lipgloss.Color("#FF6B6B"))
	case strings.Contains(line, " "+string(logbook.LevelWarn)+" "):
		return style.Foreground(lipgloss.Color("#F1FA8C"))
	}
	return style
}
