package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
)

type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout followed by stderr.
func (r *ExecResult) Output() string {
	return r.Stdout + r.Stderr
}

type execOptions struct {
	Env     []string
	WorkDir string
	Timeout time.Duration
}

type ExecOpt func(*execOptions)

// Runner executes commands and moves files in a long-running container.
type Runner interface {
	Exec(ctx context.Context, containerName string, cmd []string, opts ...ExecOpt) (*ExecResult, error)
	Sh(ctx context.Context, containerName, script string, opts ...ExecOpt) (*ExecResult, error)
	CopyTo(ctx context.Context, containerName, dstDir, filename string, src io.Reader, size int64) error
	CopyFrom(ctx context.Context, containerName, filePath string, dst io.Writer) (int64, error)
}

type dockerRunner struct {
	cli *client.Client
}

func NewDockerRunner(cli *client.Client) Runner {
	return &dockerRunner{cli: cli}
}

func WithEnv(env ...string) ExecOpt {
	return func(o *execOptions) { o.Env = append(o.Env, env...) }
}

func WithWorkDir(dir string) ExecOpt {
	return func(o *execOptions) { o.WorkDir = dir }
}

func WithTimeout(d time.Duration) ExecOpt {
	return func(o *execOptions) { o.Timeout = d }
}

// CopyFrom streams a single file out of the container.
func (d *dockerRunner) CopyFrom(ctx context.Context, containerName, filePath string, dst io.Writer) (int64, error) {
	reader, _, err := d.cli.CopyFromContainer(ctx, containerName, filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "copy %s from container", filePath)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	if _, err := tr.Next(); err != nil {
		if err == io.EOF {
			return 0, errors.Errorf("empty archive for %s", filePath)
		}
		return 0, errors.Wrap(err, "tar read header")
	}
	n, err := io.Copy(dst, tr)
	if err != nil {
		return n, errors.Wrap(err, "tar read file")
	}
	return n, nil
}

// CopyTo streams size bytes from src into dstDir/filename inside the container.
func (d *dockerRunner) CopyTo(ctx context.Context, containerName, dstDir, filename string, src io.Reader, size int64) error {
	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)
		err := tw.WriteHeader(&tar.Header{Name: filename, Mode: 0o644, Size: size})
		if err == nil {
			_, err = io.CopyN(tw, src, size)
		}
		if err == nil {
			err = tw.Close()
		}
		pw.CloseWithError(err)
	}()

	err := d.cli.CopyToContainer(ctx, containerName, dstDir, pr, container.CopyToContainerOptions{AllowOverwriteDirWithFile: false})
	pr.Close()
	if err != nil {
		return errors.Wrapf(err, "copy %s to container", filename)
	}
	return nil
}

func (d *dockerRunner) Exec(ctx context.Context, containerName string, cmd []string, opts ...ExecOpt) (*ExecResult, error) {
	o := &execOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	created, err := d.cli.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		Env:          o.Env,
		WorkingDir:   o.WorkDir,
	})
	if err != nil {
		return nil, errors.Wrap(err, "exec create")
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "exec attach")
	}
	defer attach.Close()

	var outBuf, errBuf bytes.Buffer
	outputDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&outBuf, &errBuf, attach.Reader)
		outputDone <- copyErr
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err = <-outputDone:
		if err != nil {
			return nil, errors.Wrap(err, "exec stream")
		}
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, errors.Wrap(err, "exec inspect")
	}
	return &ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
	}, nil
}

func (d *dockerRunner) Sh(ctx context.Context, containerName, script string, opts ...ExecOpt) (*ExecResult, error) {
	return d.Exec(ctx, containerName, []string{"sh", "-c", script}, opts...)
}
