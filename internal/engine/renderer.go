package engine

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

const workRoot = "/tmp/adsb-reports"

// Files is the artifact storage the renderer reads data files from and writes outputs to.
type Files interface {
	Open(name string) (*os.File, error)
	Create(name string) (*os.File, error)
	Remove(name string) error
}

type RendererConfig struct {
	Container       string
	Command         string // {{input}}, {{output}} and {{type}} are substituted
	OutputExtension string
	Timeout         time.Duration
}

// Renderer converts report data files into output documents by running the configured
// command inside the renderer container.
type Renderer struct {
	cfg    RendererConfig
	runner Runner
	jobs   repository.ReportJobRepository
	files  Files
	logger zerolog.Logger
}

func NewRenderer(cfg RendererConfig, runner Runner, jobs repository.ReportJobRepository, files Files, logger zerolog.Logger) *Renderer {
	if cfg.OutputExtension == "" {
		cfg.OutputExtension = "pdf"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Renderer{
		cfg:    cfg,
		runner: runner,
		jobs:   jobs,
		files:  files,
		logger: logger.With().Str("component", "renderer").Logger(),
	}
}

// RenderReport moves the job from data-written through rendering to done. Any failure
// puts the job in the failed state.
func (r *Renderer) RenderReport(ctx context.Context, job models.ReportJob) error {
	if job.DataFilename == "" {
		return errors.Errorf("job %s has no data file", job.ID)
	}
	job.Progress = models.ProgressRendering
	saved, err := r.jobs.Save(ctx, job)
	if err != nil {
		return r.fail(ctx, job, "", errors.Wrap(err, "save rendering state"))
	}
	job = saved

	outputName := strings.TrimSuffix(job.DataFilename, path.Ext(job.DataFilename)) + "." + r.cfg.OutputExtension
	if err := r.render(ctx, job, outputName); err != nil {
		return r.fail(ctx, job, outputName, err)
	}

	job.OutputFilename = outputName
	job.Progress = models.ProgressDone
	if _, err := r.jobs.Save(ctx, job); err != nil {
		return r.fail(ctx, job, outputName, errors.Wrap(err, "save done state"))
	}
	r.logger.Info().Str("job_id", job.ID).Str("output", outputName).Msg("report rendered")
	return nil
}

func (r *Renderer) render(ctx context.Context, job models.ReportJob, outputName string) error {
	workDir := path.Join(workRoot, job.ID)
	input := path.Join(workDir, job.DataFilename)
	output := path.Join(workDir, outputName)

	if res, err := r.runner.Sh(ctx, r.cfg.Container, "mkdir -p "+workDir, WithTimeout(10*time.Second)); err != nil {
		return errors.Wrap(err, "create work dir")
	} else if res.ExitCode != 0 {
		return errors.Errorf("create work dir failed (%d): %s", res.ExitCode, res.Output())
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := r.runner.Sh(cleanupCtx, r.cfg.Container, "rm -rf "+workDir); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to clean renderer work dir")
		}
	}()

	if err := r.upload(ctx, workDir, job.DataFilename); err != nil {
		return err
	}

	script := strings.NewReplacer(
		"{{input}}", input,
		"{{output}}", output,
		"{{type}}", job.ReportType,
	).Replace(r.cfg.Command)
	res, err := r.runner.Sh(ctx, r.cfg.Container, script, WithWorkDir(workDir), WithTimeout(r.cfg.Timeout))
	if err != nil {
		return errors.Wrap(err, "run render command")
	}
	if res.ExitCode != 0 {
		return errors.Errorf("render command failed (%d): %s", res.ExitCode, res.Output())
	}

	return r.download(ctx, output, outputName)
}

func (r *Renderer) upload(ctx context.Context, workDir, name string) error {
	f, err := r.files.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat data file")
	}
	return r.runner.CopyTo(ctx, r.cfg.Container, workDir, name, f, info.Size())
}

func (r *Renderer) download(ctx context.Context, containerPath, outputName string) error {
	f, err := r.files.Create(outputName)
	if err != nil {
		return err
	}
	if _, err := r.runner.CopyFrom(ctx, r.cfg.Container, containerPath, f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close output file")
}

func (r *Renderer) fail(ctx context.Context, job models.ReportJob, outputName string, cause error) error {
	for _, name := range []string{outputName, job.DataFilename} {
		if name == "" {
			continue
		}
		if err := r.files.Remove(name); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Str("file", name).Msg("failed to remove artifact")
		}
	}
	job.MarkFailed()
	if _, err := r.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist failed render state")
	}
	r.logger.Error().Err(cause).Str("job_id", job.ID).Msg("report rendering failed")
	return cause
}
