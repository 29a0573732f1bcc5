package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const echoScript = `#!/bin/sh
printf '%s\n' "$0" "$@"
cat
`

// newTestRunner builds a Runner with captured output and a private temp dir.
func newTestRunner(t *testing.T) (*Runner, string, *bytes.Buffer) {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	var stdout bytes.Buffer
	r := New(
		WithTempDir(dir),
		WithStdio(strings.NewReader(""), &stdout, io.Discard),
		WithWaitDelay(time.Second),
	)
	return r, dir, &stdout
}

// requireEmptyDir asserts that no temporary script was left behind.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "temporary script was not removed")
}

func TestRun_ArgvAndStdin(t *testing.T) {
	r, dir, stdout := newTestRunner(t)

	res, err := r.Run(context.Background(), Request{
		Script: echoScript,
		Name:   "deploy.sh",
		Args:   []string{"--force"},
		Stdin:  strings.NewReader("y\n"),
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.NotEmpty(t, res.RunID)

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, dir, filepath.Dir(lines[0]))
	require.True(t, strings.HasPrefix(filepath.Base(lines[0]), "gistrun-"))
	require.Equal(t, ".sh", filepath.Ext(lines[0]))
	require.Equal(t, []string{lines[0], "--force"}, res.Argv)
	require.Equal(t, "--force", lines[1])
	require.Equal(t, "y", lines[2])

	require.NoFileExists(t, lines[0])
	requireEmptyDir(t, dir)
}

func TestRun_DefaultStdin(t *testing.T) {
	r, _, stdout := newTestRunner(t)
	r.stdin = strings.NewReader("from runner\n")

	_, err := r.Run(context.Background(), Request{Script: "#!/bin/sh\ncat\n", Name: "cat"})
	require.NoError(t, err)
	require.Equal(t, "from runner\n", stdout.String())
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	r, dir, _ := newTestRunner(t)

	res, err := r.Run(context.Background(), Request{Script: "#!/bin/sh\nexit 3\n", Name: "fail.sh"})
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	requireEmptyDir(t, dir)
}

func TestRun_ShebangLessScriptUsesInterpreter(t *testing.T) {
	r, dir, stdout := newTestRunner(t)

	res, err := r.Run(context.Background(), Request{Script: "echo \"$1\"\n", Name: "hello.sh", Args: []string{"world"}})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "/bin/sh", res.Argv[0])
	require.Equal(t, "world\n", stdout.String())
	requireEmptyDir(t, dir)
}

func TestRun_WriteFailureStillCleansUp(t *testing.T) {
	r, dir, stdout := newTestRunner(t)
	diskFull := errors.New("no space left on device")
	r.write = func(io.Writer, string) error { return diskFull }

	res, err := r.Run(context.Background(), Request{Script: echoScript, Name: "deploy.sh"})
	require.Nil(t, res)
	require.ErrorIs(t, err, diskFull)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "write_script", ee.Op)
	require.Empty(t, stdout.String(), "script must not run after a failed write")
	requireEmptyDir(t, dir)
}

func TestRun_StartFailureStillCleansUp(t *testing.T) {
	r, dir, _ := newTestRunner(t)

	res, err := r.Run(context.Background(), Request{Script: "#!/nonexistent/interpreter\n", Name: "broken"})
	require.True(t, IsExecutionError(err))
	require.NotNil(t, res)
	require.Equal(t, ExitNotFound, res.ExitCode)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "start", ee.Op)
	requireEmptyDir(t, dir)
}

func TestRun_CreateTempFailure(t *testing.T) {
	r, dir, _ := newTestRunner(t)
	r.tempDir = filepath.Join(dir, "missing")

	_, err := r.Run(context.Background(), Request{Script: echoScript, Name: "deploy.sh"})
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "create_temp", ee.Op)
}

func TestRun_CancelInterruptsChildAndCleansUp(t *testing.T) {
	r, dir, _ := newTestRunner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := r.Run(ctx, Request{Script: "#!/bin/sh\nexec sleep 30\n", Name: "slow.sh"})
	require.NoError(t, err)
	require.True(t, res.Canceled)
	require.Greater(t, res.ExitCode, 128, "child should end by signal")
	require.Less(t, time.Since(start), 10*time.Second)
	requireEmptyDir(t, dir)
}

func TestSuffix(t *testing.T) {
	tests := map[string]string{
		"deploy.sh":   ".sh",
		"deploy":      "",
		"a.tar.gz":    ".gz",
		"weird.":      "",
		"x.s*h":       "",
		".env":        ".env",
		"tool.py":     ".py",
		"back\\sl.sh": ".sh",
	}
	for in, want := range tests {
		if got := suffix(in); got != want {
			t.Errorf("suffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanupOrphaned(t *testing.T) {
	r, dir, _ := newTestRunner(t)

	old := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{"gistrun-old.sh", "gistrun-recent", "unrelated-old.sh"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o500))
		if name != "gistrun-recent" {
			require.NoError(t, os.Chtimes(path, old, old))
		}
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "gistrun-dir"), 0o700))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "gistrun-dir"), old, old))

	n, err := r.CleanupOrphaned(OrphanAge)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoFileExists(t, filepath.Join(dir, "gistrun-old.sh"))
	require.FileExists(t, filepath.Join(dir, "gistrun-recent"))
	require.FileExists(t, filepath.Join(dir, "unrelated-old.sh"))
	require.DirExists(t, filepath.Join(dir, "gistrun-dir"))

	r.tempDir = filepath.Join(dir, "missing")
	_, err = r.CleanupOrphaned(OrphanAge)
	require.Error(t, err)
}

func TestCleanupOrphaned_OpenScriptKeepsWorking(t *testing.T) {
	r, dir, _ := newTestRunner(t)

	path := filepath.Join(dir, "gistrun-long-running.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho still here\n"), 0o500))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n, err := r.CleanupOrphaned(OrphanAge)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoFileExists(t, path)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\necho still here\n", string(data))

	removeScript(path, zerolog.Nop())
}
