// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/scoresummit/exam-engine/pkg/types"
)

const (
	binDocker    = "docker"
	binPodman    = "podman"
	defaultImage = "scoresummit/py-sandbox:latest"
)

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
	RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func (o *osExecutor) RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	return cmd.Run()
}

var defaultExec executor = &osExecutor{}

// ContainerRunner executes code in a local sandbox container. The image
// reads an exec request JSON on stdin and writes an exec response JSON
// on stdout, the same contract the remote service speaks.
type ContainerRunner struct {
	bin     string
	image   string
	timeout time.Duration
	exec    executor
}

// NewContainerRunner detects an available container runtime, preferring
// docker over podman, and verifies the sandbox image exists locally.
func NewContainerRunner(cfg types.SandboxConfig) (*ContainerRunner, error) {
	return newContainerRunner(cfg, defaultExec)
}

func newContainerRunner(cfg types.SandboxConfig, ex executor) (*ContainerRunner, error) {
	image := cfg.Image
	if image == "" {
		image = defaultImage
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}

	bin, err := detectRuntime(ex)
	if err != nil {
		return nil, err
	}

	r := &ContainerRunner{bin: bin, image: image, timeout: timeout, exec: ex}
	if err := r.imageExists(); err != nil {
		return nil, err
	}
	return r, nil
}

// detectRuntime tries docker first, falls back to podman.
func detectRuntime(ex executor) (string, error) {
	for _, bin := range []string{binDocker, binPodman} {
		if _, err := ex.LookPath(bin); err != nil {
			continue
		}
		if ex.RunSilent(bin, "info") == nil {
			return bin, nil
		}
	}
	return "", fmt.Errorf(
		"sandbox: no container runtime available: neither %s nor %s found or operational",
		binDocker, binPodman,
	)
}

func (r *ContainerRunner) imageExists() error {
	// docker and podman differ only in the image-check subcommand.
	check := []string{"image", "inspect"}
	if r.bin == binPodman {
		check = []string{"image", "exists"}
	}
	args := append(check, r.image)
	if err := r.exec.RunSilent(r.bin, args...); err != nil {
		return fmt.Errorf("sandbox: image %s not found in %s: %w", r.image, r.bin, err)
	}
	return nil
}

// Run pipes the exec request into a fresh container and decodes the
// response from its stdout. The container is removed on exit and the
// call is bounded by the configured timeout.
func (r *ContainerRunner) Run(ctx context.Context, code string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(execRequest{Code: code})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling exec request: %w", err)
	}

	var out bytes.Buffer
	args := []string{"run", "--rm", "-i", "--network=none", r.image}
	if err := r.exec.RunPiped(runCtx, r.bin, args, bytes.NewReader(payload), &out); err != nil {
		return Result{}, fmt.Errorf("sandbox: running %s container: %w", r.bin, err)
	}

	var er execResponse
	if err := json.Unmarshal(out.Bytes(), &er); err != nil {
		return Result{}, fmt.Errorf("sandbox: decoding container output: %w", err)
	}
	return er.toResult(), nil
}
