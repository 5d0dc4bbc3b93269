// cmd/packsync/main.go
//
// This is the entry point for the packsync CLI.
//
// Without a subcommand it scaffolds the project folder if needed and opens
// the TUI. `packsync run --job pack` executes a job headless and prints
// every status line with a timestamp.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/packsync/internal/config"
	"github.com/kingrea/packsync/internal/logbook"
	"github.com/kingrea/packsync/internal/logging"
	"github.com/kingrea/packsync/internal/pipeline"
	"github.com/kingrea/packsync/internal/tui"
)

var (
	// Global flags
	projectDir string
	verbose    bool

	// run flags
	jobName      string
	showProgress bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "packsync",
	Short: "Reshape the A14 report and sync it into the BASE workbooks",
	Long: `packsync reads the A14 report exported from the portal, keeps the PKG rows,
builds the PACK / CONTEÚDO table and writes it into the A14 sheet of every
*BASE* workbook in the Bases folder. It also converts per-model CSV reports
into filtered workbooks.

Run without arguments to open the interactive interface.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runInteractive,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a job without the interface",
	Long: `Runs one job and prints its status lines as "HH:MM:SS - text".

Jobs:
  - pack:   reshape the A14 report and update every BASE workbook
  - models: convert the model CSV reports in the downloads folder
  - all:    pack, then models`,
	Args: cobra.NoArgs,
	RunE: runHeadless,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the project folders and a default packsync.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.ResolveProjectDir(projectDir)
		if err != nil {
			return err
		}
		if err := config.Init(dir); err != nil {
			return fmt.Errorf("init %s: %w", dir, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Projeto pronto em %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "d", "", "Project directory (default: $"+config.HomeEnv+" or current)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().StringVarP(&jobName, "job", "j", string(pipeline.JobPack), "Job to run: pack, models or all")
	runCmd.Flags().BoolVar(&showProgress, "progress", false, "Also print progress percentages")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup resolves the project, loads its configuration and opens the log.
func setup(scaffold bool) (*config.Config, error) {
	dir, err := config.ResolveProjectDir(projectDir)
	if err != nil {
		return nil, err
	}
	if scaffold {
		if err := config.Init(dir); err != nil {
			return nil, fmt.Errorf("init %s: %w", dir, err)
		}
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	logger, err = logging.New(cfg.LogsDir(), verbose)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", zap.String("project", cfg.ProjectDir), zap.String("input", cfg.Project.Pack.Input))
	return cfg, nil
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := setup(true)
	if err != nil {
		return err
	}
	app, err := tui.NewApp(cfg, tui.WithLogger(logger))
	if err != nil {
		return err
	}
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

func runHeadless(cmd *cobra.Command, args []string) error {
	job, err := pipeline.ParseJob(jobName)
	if err != nil {
		return err
	}
	cfg, err := setup(false)
	if err != nil {
		return err
	}
	book, err := logbook.New(filepath.Join(cfg.LogsDir(), logbook.FileName))
	if err != nil {
		return fmt.Errorf("activity log: %w", err)
	}
	book.Info("Execução sem interface: %s", job)
	runner := pipeline.New(cfg, pipeline.Options{Logger: logger})
	done := printRun(cmd.OutOrStdout(), book, runner.Start(job), showProgress, time.Now)
	if !done.OK {
		return fmt.Errorf("job %s failed: %w", job, done.Err)
	}
	return nil
}

// printRun consumes a run's channel, writes one line per status and records
// each status in book.
func printRun(w io.Writer, book *logbook.Logbook, msgs <-chan pipeline.Message, withProgress bool, now func() time.Time) pipeline.Done {
	var done pipeline.Done
	for m := range msgs {
		switch m := m.(type) {
		case pipeline.Status:
			book.Append(m.Level, m.Text)
			text := m.Text
			if m.Level != logbook.LevelInfo {
				text = fmt.Sprintf("[%s] %s", m.Level, text)
			}
			fmt.Fprintf(w, "%s - %s\n", now().Format("15:04:05"), text)
		case pipeline.Progress:
			if withProgress {
				fmt.Fprintf(w, "%s - %d%%\n", now().Format("15:04:05"), m.Percent)
			}
		case pipeline.Done:
			done = m
		}
	}
	return done
}
