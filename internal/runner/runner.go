package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gistrun/internal/monitor"
	"gistrun/internal/runtime"
)

// scriptMode is owner read+execute. On Unix, removing a file needs write
// permission on its directory, not on the file, so owner-write is left off.
const scriptMode os.FileMode = 0o500

// Exit codes reported when the script could not be started, following the
// shell conventions.
const (
	ExitCannotExecute = 126
	ExitNotFound      = 127
)

type Request struct {
	Script string
	// Name is the published filename. Its extension becomes the temp file
	// suffix and selects an interpreter for scripts without a "#!" line.
	Name  string
	Args  []string
	Stdin io.Reader // nil means the runner's default
}

type Result struct {
	RunID    string
	ExitCode int
	Duration time.Duration
	Argv     []string
	Canceled bool
}

// Runner materializes script text as a temporary executable, runs it, and
// always removes it.
type Runner struct {
	tempDir   string
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	runtimes  *runtime.Registry
	waitDelay time.Duration
	metrics   *monitor.Metrics
	tracer    *monitor.Tracer

	// write copies the script into the temp file; replaced in tests.
	write func(w io.Writer, script string) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithTempDir places temporary scripts in dir instead of os.TempDir().
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

// WithStdio sets the streams the child inherits.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdin, r.stdout, r.stderr = stdin, stdout, stderr
	}
}

// WithWaitDelay bounds how long a canceled child may take to exit after the
// interrupt before it is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) { r.waitDelay = d }
}

func WithRegistry(reg *runtime.Registry) Option {
	return func(r *Runner) { r.runtimes = reg }
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithTracer(t *monitor.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// New creates a Runner wired to the process's standard streams.
func New(opts ...Option) *Runner {
	r := &Runner{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		runtimes:  runtime.NewRegistry(),
		waitDelay: 5 * time.Second,
		write:     writeAll,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req.Script with req.Args. A non-zero exit is reported in
// Result.ExitCode, not as an error. An error means the script never ran;
// Result is still returned with ExitCannotExecute or ExitNotFound when the
// failure happened at process start.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.New().String()
	logger := log.With().
		Str("run_id", runID).
		Str("script", req.Name).
		Logger()

	ctx, span := r.tracer.StartSpan(ctx, "run",
		monitor.AttrRunID.String(runID),
		monitor.AttrFile.String(req.Name),
	)
	defer span.End()

	f, err := os.CreateTemp(r.tempDir, tempPrefix+"*"+suffix(req.Name))
	if err != nil {
		return nil, &ExecutionError{RunID: runID, Op: "create_temp", Err: err}
	}
	path := f.Name()
	defer removeScript(path, logger)

	if err := r.materialize(f, req.Script); err != nil {
		return nil, &ExecutionError{RunID: runID, Op: "write_script", Err: err}
	}
	if err := os.Chmod(path, scriptMode); err != nil {
		return nil, &ExecutionError{RunID: runID, Op: "chmod_script", Err: err}
	}

	argv := r.runtimes.Command(path, req.Name, req.Script)
	argv = append(argv, req.Args...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- running the requested script is the point
	cmd.Stdin = req.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = r.stdin
	}
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.WaitDelay = r.waitDelay
	if goruntime.GOOS != "windows" {
		cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	}

	logger.Debug().Str("path", path).Strs("argv", argv).Msg("starting script")

	start := time.Now()
	err = cmd.Run()
	res := &Result{
		RunID:    runID,
		Argv:     argv,
		Duration: time.Since(start),
		Canceled: ctx.Err() != nil,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.ExitCode = startFailureCode(err)
			r.metrics.RecordRun(res.ExitCode, len(req.Script), res.Duration.Seconds())
			span.RecordError(err)
			return res, &ExecutionError{RunID: runID, Op: "start", Err: err}
		}
		res.ExitCode = exitCode(exitErr)
	}

	r.metrics.RecordRun(res.ExitCode, len(req.Script), res.Duration.Seconds())
	span.SetAttributes(monitor.AttrExitCode.Int(res.ExitCode))

	logger.Debug().
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Bool("canceled", res.Canceled).
		Msg("script finished")

	return res, nil
}

// materialize writes the script, flushes it to disk and closes the handle so
// the file is complete before it is executed.
func (r *Runner) materialize(f *os.File, script string) error {
	if err := r.write(f, script); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing: %w", err)
	}
	return f.Close()
}

func writeAll(w io.Writer, script string) error {
	_, err := io.WriteString(w, script)
	return err
}

func removeScript(path string, logger zerolog.Logger) {
	if goruntime.GOOS == "windows" {
		// A read-only file cannot be deleted on Windows.
		_ = os.Chmod(path, 0o600)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Str("path", path).Msg("failed to remove temporary script")
	}
}

// suffix keeps a plain extension such as ".sh" from the published name.
func suffix(name string) string {
	ext := filepath.Ext(name)
	if ext == "." || strings.ContainsAny(ext, `/\*`) {
		return ""
	}
	return ext
}

func exitCode(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}

func startFailureCode(err error) int {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
		return ExitNotFound
	}
	return ExitCannotExecute
}
