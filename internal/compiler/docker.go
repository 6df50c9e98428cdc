package compiler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"

	"teavmc/internal/classpath"
	"teavmc/internal/diagnostics"
	"teavmc/internal/sources"
)

// DefaultImage provides the JVM the runner executes in.
const DefaultImage = "eclipse-temurin:17-jre"

// ContainerAPI is the subset of the docker client DockerTool uses.
type ContainerAPI interface {
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *v1.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerTool runs the TeaVM runner inside a container. Every host path the
// runner needs is bind-mounted at the same path, so the runner options are
// identical to a local run.
type DockerTool struct {
	API   ContainerAPI
	Image string
	Log   logrus.FieldLogger

	problems []diagnostics.Problem
}

var _ Tool = (*DockerTool)(nil)

func NewDockerTool(api ContainerAPI, img string, log logrus.FieldLogger) *DockerTool {
	if img == "" {
		img = DefaultImage
	}
	return &DockerTool{API: api, Image: img, Log: log}
}

// NewDockerClientFromEnv connects to the docker daemon configured in the
// environment (DOCKER_HOST and friends).
func NewDockerClientFromEnv() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

func (t *DockerTool) Generate(ctx context.Context, cfg Config, loader classpath.Loader) error {
	t.problems = nil

	cfg, err := absConfig(cfg)
	if err != nil {
		return err
	}

	for _, dir := range []string{cfg.TargetDirectory, cfg.CacheDirectory} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := t.ensureImage(ctx); err != nil {
		return err
	}

	cp := loader.ClassPath()
	cmd := append([]string{"java", "-cp", strings.Join(cp, ":"), RunnerClass}, cfg.Args()...)

	name := "teavmc-" + uuid.NewString()
	resp, err := t.API.ContainerCreate(ctx, &container.Config{
		Image: t.Image,
		Cmd:   cmd,
		Tty:   false,
		User:  hostUser(),
	}, &container.HostConfig{
		Mounts: t.mounts(cfg, cp),
	}, nil, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	defer func() {
		if err := t.API.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); err != nil && t.Log != nil {
			t.Log.WithError(err).WithField("container", name).Warn("Failed to remove compiler container")
		}
	}()

	if err := t.API.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := t.API.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed waiting for container: %w", err)
		}
	case status := <-statusCh:
		if status.Error != nil {
			return fmt.Errorf("container wait error: %s", status.Error.Message)
		}
		exitCode = status.StatusCode
	}

	logs, err := t.API.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return fmt.Errorf("failed to fetch container logs: %w", err)
	}
	defer logs.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, logs); err != nil {
		return fmt.Errorf("failed to read container logs: %w", err)
	}

	t.problems = parseProblems(out.Bytes(), t.Log)

	var runErr error
	if exitCode != 0 {
		runErr = fmt.Errorf("exit status %d", exitCode)
	}
	return runnerError(ctx, runErr, t.problems, out.Bytes())
}

func (t *DockerTool) Problems() []diagnostics.Problem {
	return t.problems
}

func (t *DockerTool) ensureImage(ctx context.Context) error {
	if _, err := t.API.ImageInspect(ctx, t.Image); err == nil {
		return nil
	}
	if t.Log != nil {
		t.Log.WithField("image", t.Image).Info("Image not found locally, pulling")
	}
	rc, err := t.API.ImagePull(ctx, t.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", t.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", t.Image, err)
	}
	return nil
}

// mounts binds the classpath and source providers read-only and the target
// and cache directories read-write. Paths that do not exist are skipped.
func (t *DockerTool) mounts(cfg Config, cp []string) []mount.Mount {
	seen := make(map[string]bool)
	var out []mount.Mount
	add := func(path string, readOnly bool) {
		if path == "" || seen[path] {
			return
		}
		if _, err := os.Stat(path); err != nil {
			if t.Log != nil {
				t.Log.WithField("path", path).Debug("Skipping mount for missing path")
			}
			return
		}
		seen[path] = true
		out = append(out, mount.Mount{Type: mount.TypeBind, Source: path, Target: path, ReadOnly: readOnly})
	}

	add(cfg.TargetDirectory, false)
	add(cfg.CacheDirectory, false)
	for _, p := range cp {
		add(p, true)
	}
	for _, p := range cfg.Sources {
		add(p.Path, true)
	}
	return out
}

// absConfig makes every path in cfg absolute so that mount points and
// runner options agree inside the container.
func absConfig(cfg Config) (Config, error) {
	var err error
	abs := func(p string) string {
		if p == "" || err != nil {
			return p
		}
		var a string
		a, err = filepath.Abs(p)
		return a
	}

	out := cfg
	out.TargetDirectory = abs(cfg.TargetDirectory)
	out.CacheDirectory = abs(cfg.CacheDirectory)
	out.Sources = make([]sources.Provider, len(cfg.Sources))
	for i, p := range cfg.Sources {
		out.Sources[i] = sources.Provider{Kind: p.Kind, Path: abs(p.Path)}
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	return out, nil
}

func hostUser() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}
