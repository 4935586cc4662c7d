package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
	"github.com/Tubbz-alt/adsbrecorder/internal/storage"
)

type fakeRunner struct {
	mu       sync.Mutex
	scripts  []string
	uploaded map[string][]byte
	output   []byte
	exitCode int
	copyErr  error
}

func (f *fakeRunner) Exec(ctx context.Context, containerName string, cmd []string, opts ...ExecOpt) (*ExecResult, error) {
	return f.Sh(ctx, containerName, strings.Join(cmd, " "), opts...)
}

func (f *fakeRunner) Sh(_ context.Context, _ string, script string, _ ...ExecOpt) (*ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, script)
	if strings.HasPrefix(script, "render") {
		return &ExecResult{ExitCode: f.exitCode, Stderr: "renderer output"}, nil
	}
	return &ExecResult{}, nil
}

func (f *fakeRunner) CopyTo(_ context.Context, _, dstDir, filename string, src io.Reader, size int64) error {
	body, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	if int64(len(body)) != size {
		return errors.New("size mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[dstDir+"/"+filename] = body
	return nil
}

func (f *fakeRunner) CopyFrom(_ context.Context, _, _ string, dst io.Writer) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	n, err := io.Copy(dst, bytes.NewReader(f.output))
	return n, err
}

type renderFixture struct {
	runner *fakeRunner
	jobs   *repository.MemoryReportJobRepository
	files  *storage.Service
	r      *Renderer
	job    models.ReportJob
}

func newRenderFixture(t *testing.T) *renderFixture {
	t.Helper()
	files, err := storage.NewService(t.TempDir())
	require.NoError(t, err)

	data, err := files.CreateDataOutputFile("xml")
	require.NoError(t, err)
	_, err = io.WriteString(data, "<simple_daily_summary/>")
	require.NoError(t, err)
	require.NoError(t, data.Close())

	jobs := repository.NewMemoryReportJobRepository()
	job, err := jobs.Save(context.Background(), models.ReportJob{
		ID:                "job-1",
		ReportType:        "simple_daily_summary",
		SubmittedByUserID: 7,
		Progress:          models.ProgressDataWritten,
		DataFilename:      data.Name(),
	})
	require.NoError(t, err)

	runner := &fakeRunner{output: []byte("%PDF-1.4")}
	cfg := RendererConfig{Container: "fop", Command: "render {{input}} {{type}} {{output}}"}
	return &renderFixture{
		runner: runner,
		jobs:   jobs,
		files:  files,
		r:      NewRenderer(cfg, runner, jobs, files, zerolog.Nop()),
		job:    job,
	}
}

func TestRenderReport(t *testing.T) {
	f := newRenderFixture(t)

	require.NoError(t, f.r.RenderReport(context.Background(), f.job))

	got, err := f.jobs.FindByID(context.Background(), f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressDone, got.Progress)
	assert.True(t, strings.HasSuffix(got.OutputFilename, ".pdf"))

	out, err := f.files.Open(got.OutputFilename)
	require.NoError(t, err)
	body, err := io.ReadAll(out)
	require.NoError(t, err)
	require.NoError(t, out.Close())
	assert.Equal(t, "%PDF-1.4", string(body))

	workDir := workRoot + "/job-1"
	assert.Equal(t, []byte("<simple_daily_summary/>"), f.runner.uploaded[workDir+"/"+f.job.DataFilename])
	assert.Contains(t, f.runner.scripts, "render "+workDir+"/"+f.job.DataFilename+" simple_daily_summary "+workDir+"/"+got.OutputFilename)
	assert.Equal(t, "rm -rf "+workDir, f.runner.scripts[len(f.runner.scripts)-1])
}

func TestRenderReportCommandFailure(t *testing.T) {
	f := newRenderFixture(t)
	f.runner.exitCode = 1

	err := f.r.RenderReport(context.Background(), f.job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renderer output")

	got, err := f.jobs.FindByID(context.Background(), f.job.ID)
	require.NoError(t, err)
	assert.True(t, got.Failed())
	assert.Empty(t, got.OutputFilename)

	path, err := f.files.Path(f.job.DataFilename)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "data file removed on failure")
}

func TestRenderReportDownloadFailure(t *testing.T) {
	f := newRenderFixture(t)
	f.runner.copyErr = errors.New("no such file")

	require.Error(t, f.r.RenderReport(context.Background(), f.job))

	got, err := f.jobs.FindByID(context.Background(), f.job.ID)
	require.NoError(t, err)
	assert.True(t, got.Failed())
}

func TestRenderReportWithoutDataFile(t *testing.T) {
	f := newRenderFixture(t)
	f.job.DataFilename = ""
	assert.Error(t, f.r.RenderReport(context.Background(), f.job))
}
