package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"wikiseed/internal/config"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
)

// stderrTailBytes caps how much child stderr is folded into an error.
const stderrTailBytes = 512

// Invocation is one external command run.
type Invocation struct {
	Binary string
	Args   []string
	Stdin  []byte
	Env    []string
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, inv Invocation) (stdout, stderr []byte, err error)
}

// commandExecutor executes commands using os/exec.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, inv Invocation) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(inv.Stdin)
	cmd.Env = append(os.Environ(), inv.Env...)
	cmd.WaitDelay = 10 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CommandOption customizes a CommandHandler.
type CommandOption func(*CommandHandler)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) CommandOption {
	return func(h *CommandHandler) {
		if exec != nil {
			h.exec = exec
		}
	}
}

// WithLookPath replaces exec.LookPath in health checks.
func WithLookPath(lookPath func(string) (string, error)) CommandOption {
	return func(h *CommandHandler) {
		if lookPath != nil {
			h.lookPath = lookPath
		}
	}
}

// CommandHandler runs workers.kinds.<kind>.command for each job. The job is
// written to stdin as JSON; stdout may carry {"result": {...}, "enqueue": [...]}.
type CommandHandler struct {
	kind       queue.Kind
	binary     string
	args       []string
	fatalCodes map[int]struct{}
	exec       Executor
	lookPath   func(string) (string, error)
}

// NewCommandHandler builds the handler for kind from its policy.
func NewCommandHandler(kind queue.Kind, policy config.KindPolicy, opts ...CommandOption) (*CommandHandler, error) {
	if len(policy.Command) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "stage", string(kind),
			"workers.kinds."+string(kind)+".command is not set", nil)
	}
	h := &CommandHandler{
		kind:       kind,
		binary:     policy.Command[0],
		args:       append([]string(nil), policy.Command[1:]...),
		fatalCodes: make(map[int]struct{}, len(policy.FatalExitCodes)),
		exec:       commandExecutor{},
		lookPath:   exec.LookPath,
	}
	for _, code := range policy.FatalExitCodes {
		h.fatalCodes[code] = struct{}{}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Execute runs the command for job and decodes its output.
func (h *CommandHandler) Execute(ctx context.Context, job *queue.Job) (Result, error) {
	input, err := json.Marshal(job)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "stage", string(h.kind), "encode job", err)
	}
	inv := Invocation{
		Binary: h.binary,
		Args:   h.args,
		Stdin:  input,
		Env: []string{
			"WIKISEED_JOB_ID=" + strconv.FormatInt(job.ID, 10),
			"WIKISEED_JOB_KIND=" + string(job.Kind),
			"WIKISEED_JOB_TARGET=" + job.Target,
			"WIKISEED_JOB_ATTEMPT=" + strconv.Itoa(job.AttemptCount+1),
		},
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		inv.Env = append(inv.Env, "WIKISEED_CORRELATION_ID="+rid)
	}

	stdout, stderr, runErr := h.exec.Run(ctx, inv)
	if runErr != nil {
		return Result{}, h.classify(ctx, runErr, stderr)
	}
	return h.decode(stdout)
}

func (h *CommandHandler) classify(ctx context.Context, runErr error, stderr []byte) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s command interrupted: %w", h.kind, context.Cause(ctx))
	}
	detail := strings.TrimSpace(tail(stderr, stderrTailBytes))
	type exitCoder interface{ ExitCode() int }
	var exitErr exitCoder
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		message := fmt.Sprintf("%s exited with status %d", h.binary, code)
		if detail != "" {
			message += ": " + detail
		}
		if _, fatal := h.fatalCodes[code]; fatal {
			return services.Wrap(services.ErrFatal, "stage", string(h.kind), message, runErr)
		}
		return services.Wrap(services.ErrExternalTool, "stage", string(h.kind), message, runErr)
	}
	return services.Wrap(services.ErrExternalTool, "stage", string(h.kind), "start "+h.binary, runErr)
}

func (h *CommandHandler) decode(stdout []byte) (Result, error) {
	if len(bytes.TrimSpace(stdout)) == 0 {
		return Result{}, nil
	}
	var result Result
	if err := json.Unmarshal(stdout, &result); err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "stage", string(h.kind), "decode command output", err)
	}
	for i := range result.FollowUps {
		kind, err := queue.ParseKind(string(result.FollowUps[i].Kind))
		if err != nil {
			return Result{}, services.Wrap(services.ErrValidation, "stage", string(h.kind), "follow-up "+strconv.Itoa(i), err)
		}
		result.FollowUps[i].Kind = kind
	}
	return result, nil
}

// HealthCheck reports whether the configured binary resolves.
func (h *CommandHandler) HealthCheck(context.Context) Health {
	name := string(h.kind)
	if _, err := h.lookPath(h.binary); err != nil {
		return Unhealthy(name, fmt.Sprintf("%s not found: %v", h.binary, err))
	}
	return Healthy(name)
}

func tail(data []byte, limit int) string {
	if len(data) > limit {
		data = data[len(data)-limit:]
	}
	return string(data)
}
