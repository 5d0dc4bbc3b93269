// Package pipeline runs packsync jobs on a worker goroutine and reports
// their progress over a channel owned by each run.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/packsync/internal/config"
	"github.com/kingrea/packsync/internal/convert"
	"github.com/kingrea/packsync/internal/loader"
	"github.com/kingrea/packsync/internal/logbook"
	"github.com/kingrea/packsync/internal/reshape"
	"github.com/kingrea/packsync/internal/table"
	"github.com/kingrea/packsync/internal/workbook"
)

// Job names what a run does.
type Job string

const (
	// JobPack reshapes the A14 report and writes it into every base workbook.
	JobPack Job = "pack"
	// JobModels converts the per-model CSV reports.
	JobModels Job = "models"
	// JobAll runs JobPack then JobModels.
	JobAll Job = "all"
)

// Jobs lists the accepted job names.
var Jobs = []Job{JobPack, JobModels, JobAll}

// ParseJob validates a job name.
func ParseJob(name string) (Job, error) {
	job := Job(strings.ToLower(strings.TrimSpace(name)))
	for _, j := range Jobs {
		if j == job {
			return job, nil
		}
	}
	return "", fmt.Errorf("pipeline: unknown job %q (want pack, models or all)", name)
}

const channelBuffer = 64

// Options tune a Runner.
type Options struct {
	Logger *zap.Logger
}

// Runner executes jobs against one project configuration. It holds no
// per-run state, so concurrent runs do not interfere.
type Runner struct {
	cfg *config.Config
	log *zap.Logger
}

// New creates a Runner.
func New(cfg *config.Config, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, log: log}
}

// Start runs job on its own goroutine. The returned channel belongs to this
// run and is closed after the Done message.
func (r *Runner) Start(job Job) <-chan Message {
	out := make(chan Message, channelBuffer)
	go func() {
		defer close(out)
		r.Run(job, out)
	}()
	return out
}

// Run executes job synchronously, sending every message to out and ending
// with Done, which is also returned.
func (r *Runner) Run(job Job, out chan<- Message) Done {
	id := uuid.NewString()
	rn := &run{
		out: out,
		log: r.log.With(zap.String("run_id", id), zap.String("job", string(job))),
		hi:  100,
	}
	started := time.Now()
	rn.log.Info("run started")

	var err error
	switch job {
	case JobPack:
		err = r.pack(rn)
	case JobModels:
		err = r.models(rn)
	case JobAll:
		rn.lo, rn.hi = 0, 50
		if err = r.pack(rn); err == nil {
			rn.lo, rn.hi = 50, 100
			err = r.models(rn)
		}
	default:
		err = fmt.Errorf("pipeline: unknown job %q", job)
		rn.fail("Tarefa desconhecida: %s", job)
	}

	done := Done{OK: err == nil, Err: err}
	if done.OK {
		rn.lo, rn.hi = 0, 100
		rn.progress(100)
	}
	rn.log.Info("run finished", zap.Bool("ok", done.OK), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
	out <- done
	return done
}

// pack is the A14 job. Load and reshape failures stop it before anything
// is written; per-workbook failures are reported and skipped.
func (r *Runner) pack(rn *run) error {
	pc := r.cfg.Project.Pack
	rn.info("Inicializando o processamento dos arquivos...")
	rn.progress(5)

	input := pc.Input
	if input == config.InputLatest {
		newest, err := loader.Newest(r.cfg.DownloadsDir())
		if err != nil {
			rn.fail("Nenhum relatório encontrado em %s: %v", r.cfg.DownloadsDir(), err)
			return err
		}
		input = newest
	}
	rn.log.Info("loading input", zap.String("path", input))

	tbl, err := loader.Load(input)
	if err != nil {
		if errors.Is(err, loader.ErrUnsupportedFormat) {
			rn.fail("Formato de arquivo não suportado: %s", filepath.Ext(input))
		} else {
			rn.fail("Erro ao ler arquivo: %v", err)
		}
		return err
	}
	rn.info("Arquivo carregado (%s)", tbl.Describe())
	rn.progress(25)

	opts := r.cfg.ReshapeOptions()
	res, err := reshape.Reshape(tbl, opts)
	switch {
	case errors.Is(err, reshape.ErrNoMatchingRows):
		rn.warn("Nenhuma linha encontrada com %s.", opts.Filter)
		return nil
	case errors.Is(err, reshape.ErrMissingColumn):
		rn.fail("Coluna '%s' não encontrada. Colunas disponíveis: %s", opts.Filter.Column, table.Join(tbl.Columns()))
		return err
	case errors.Is(err, reshape.ErrNoOptionalColumns):
		rn.fail("Nenhuma coluna contendo '%s' encontrada.", opts.Marker)
		return err
	case err != nil:
		rn.fail("Erro ao transformar a tabela: %v", err)
		return err
	}
	rn.info("Coluna do PACK: '%s'", res.PackColumn)
	rn.info("Colunas do CONTEÚDO: %d colunas", len(res.ContentColumns))
	rn.info("%d registros prontos para atualização.", len(res.Rows))
	rn.log.Info("reshaped", zap.Int("scanned", res.Scanned), zap.Int("rows", len(res.Rows)))
	rn.progress(45)

	sheet := workbook.Sheet{Name: pc.Sheet, Header: res.Header(), Rows: res.Records()}
	report, err := workbook.FanOut(r.cfg.BasesDir(), r.cfg.Selector(), sheet, workbook.Hooks{
		Before: func(i, total int, name string) {
			rn.info("Atualizando arquivo: %s", name)
		},
		After: func(i, total int, fr workbook.FileResult) {
			if fr.OK() {
				rn.info("Planilha '%s' atualizada em %s", pc.Sheet, fr.Name)
			} else {
				rn.fail("%v", fr.Err)
				rn.log.Error("workbook failed", zap.String("file", fr.Path), zap.Error(fr.Err))
			}
			rn.progress(45 + 50*(i+1)/total)
		},
	})
	if err != nil {
		if errors.Is(err, workbook.ErrDirectoryNotFound) {
			rn.fail("Pasta '%s' não encontrada: %s", filepath.Base(r.cfg.BasesDir()), r.cfg.BasesDir())
		} else {
			rn.fail("Erro ao listar as bases: %v", err)
		}
		return err
	}
	if len(report.Files) == 0 {
		rn.warn("Nenhuma planilha contendo '%s' encontrada em %s.", r.cfg.Project.Targets.Marker, r.cfg.BasesDir())
	} else if failed := len(report.Failed()); failed > 0 {
		rn.warn("%d de %d planilhas não foram atualizadas.", failed, len(report.Files))
	}
	rn.info("Processamento concluído com sucesso.")
	return nil
}

// models converts each model report. Only a missing downloads folder fails
// the job.
func (r *Runner) models(rn *run) error {
	mc := r.cfg.Project.Models
	filter := r.cfg.ModelFilter()
	rn.info("Convertendo relatórios de modelo em %s", r.cfg.DownloadsDir())
	rn.progress(5)

	results, err := convert.Run(convert.Options{
		Dir:    r.cfg.DownloadsDir(),
		Keys:   mc.Keys,
		Skip:   r.cfg.Skipped,
		Filter: filter,
	}, convert.Hooks{
		Before: func(i, total int, key string) {
			rn.info("Processando modelo %s", key)
		},
		After: func(i, total int, res convert.Result) {
			switch {
			case res.State == convert.Converted:
				rn.info("Arquivo Excel criado com %d linhas: %s", res.Rows, res.Output)
			case res.State == convert.Skipped && res.Err == nil:
				rn.info("Modelo %s ignorado.", res.Key)
			case errors.Is(res.Err, convert.ErrNoRows):
				rn.warn("Nenhuma linha com %s='%s' no modelo %s, conversão ignorada.", filter.Column, filter.Value, res.Key)
			case errors.Is(res.Err, reshape.ErrMissingColumn):
				rn.warn("Coluna '%s' não encontrada no modelo %s, conversão ignorada.", filter.Column, res.Key)
			default:
				rn.fail("Erro ao converter %s para Excel: %v", res.Key, res.Err)
			}
			rn.log.Info("model processed", zap.String("model", res.Key), zap.Stringer("state", res.State), zap.Error(res.Err))
			rn.progress(5 + 90*(i+1)/total)
		},
	})
	if err != nil {
		if errors.Is(err, workbook.ErrDirectoryNotFound) {
			rn.fail("Pasta '%s' não encontrada: %s", filepath.Base(r.cfg.DownloadsDir()), r.cfg.DownloadsDir())
		} else {
			rn.fail("Erro ao listar os relatórios: %v", err)
		}
		return err
	}
	if len(results) == 0 {
		rn.warn("Nenhum relatório de modelo encontrado em %s.", r.cfg.DownloadsDir())
	}
	rn.info("Conversão dos modelos concluída.")
	return nil
}

// run carries one invocation's channel and its progress window.
type run struct {
	out    chan<- Message
	log    *zap.Logger
	lo, hi int
	last   int
}

func (rn *run) status(level logbook.Level, format string, args ...any) {
	rn.out <- Status{Level: level, Text: fmt.Sprintf(format, args...)}
}

func (rn *run) info(format string, args ...any) { rn.status(logbook.LevelInfo, format, args...) }
func (rn *run) warn(format string, args ...any) { rn.status(logbook.LevelWarn, format, args...) }
func (rn *run) fail(format string, args ...any) { rn.status(logbook.LevelError, format, args...) }

// progress maps percent into the current window and never goes backwards.
func (rn *run) progress(percent int) {
	p := rn.lo + (rn.hi-rn.lo)*percent/100
	if p <= rn.last {
		return
	}
	rn.last = p
	rn.out <- Progress{Percent: p}
}
