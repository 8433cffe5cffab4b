//go:build unix

package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

// writeScript создаёт shell-скрипт во временной директории.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// processAlive проверяет, жив ли процесс (зомби считается мёртвым).
func processAlive(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// Формат: pid (comm) state ...
	s := string(stat)
	if i := strings.LastIndex(s, ")"); i >= 0 && i+2 < len(s) {
		return s[i+2] != 'Z'
	}
	return true
}

func newTestRunner() *Runner {
	return New(Config{GracePeriod: 500 * time.Millisecond})
}

// --- Runner Tests ---

func TestRun_Success(t *testing.T) {
	script := writeScript(t, `echo "hello $1"; echo "warn" >&2`)

	res, err := newTestRunner().Run(context.Background(), Command{
		Name: "echo",
		Path: "/bin/sh",
		Args: []string{script, "world"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got outcome=%s code=%d", res.Outcome, res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello world" {
		t.Errorf("unexpected stdout %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "warn" {
		t.Errorf("unexpected stderr %q", res.Stderr)
	}
	if res.Duration <= 0 {
		t.Error("duration should be recorded")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "boom" >&2; exit 3`)

	res, err := newTestRunner().Run(context.Background(), Command{Path: "/bin/sh", Args: []string{script}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeExited {
		t.Errorf("expected exited, got %s", res.Outcome)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
	if res.Success() {
		t.Error("non-zero exit must not be success")
	}
	if !strings.Contains(res.Stderr, "boom") {
		t.Errorf("stderr should be captured, got %q", res.Stderr)
	}
}

func TestRun_WorkingDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, `pwd; echo "$MOCAP_TEST_VAR"`)

	res, err := newTestRunner().Run(context.Background(), Command{
		Path: "/bin/sh",
		Args: []string{script},
		Dir:  dir,
		Env:  map[string]string{"MOCAP_TEST_VAR": "override"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[0])
	if gotDir != wantDir {
		t.Errorf("expected dir %s, got %s", wantDir, gotDir)
	}
	if lines[1] != "override" {
		t.Errorf("expected env override, got %q", lines[1])
	}
}

func TestRun_StartError(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), Command{Path: "/nonexistent/tool"})
	if !errors.Is(err, ErrStart) {
		t.Fatalf("expected ErrStart, got %v", err)
	}
}

func TestRun_TimeoutKillsProcessTree(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	// Дочерний sleep в фоне + ожидание: оба должны быть убиты.
	script := writeScript(t, `sleep 30 &
echo $! > "$1"
wait`)

	start := time.Now()
	res, err := newTestRunner().Run(context.Background(), Command{
		Name:    "slow",
		Path:    "/bin/sh",
		Args:    []string{script, pidFile},
		Timeout: 300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("expected timed_out, got %s", res.Outcome)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took too long after timeout: %v", elapsed)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	childPid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse pid: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for processAlive(childPid) {
		if time.Now().After(deadline) {
			t.Fatalf("child process %d outlived timeout handling", childPid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRun_TimeoutEscalatesToSIGKILL(t *testing.T) {
	// Скрипт игнорирует SIGTERM.
	script := writeScript(t, `trap '' TERM
while true; do sleep 0.1; done`)

	res, err := newTestRunner().Run(context.Background(), Command{
		Path:    "/bin/sh",
		Args:    []string{script},
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("expected timed_out, got %s", res.Outcome)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	res, err := newTestRunner().Run(ctx, Command{Path: "/bin/sh", Args: []string{script}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Errorf("expected cancelled, got %s", res.Outcome)
	}
}

// --- tailBuffer Tests ---

func TestTailBuffer_KeepsTail(t *testing.T) {
	b := newTailBuffer(5)
	b.Write([]byte("abc"))
	b.Write([]byte("defg"))

	got := b.String()
	if !strings.HasSuffix(got, "cdefg") {
		t.Errorf("expected tail cdefg, got %q", got)
	}
	if !strings.HasPrefix(got, "...(truncated)") {
		t.Errorf("expected truncation marker, got %q", got)
	}
}

func TestTailBuffer_NoTruncation(t *testing.T) {
	b := newTailBuffer(10)
	b.Write([]byte("abc"))
	if b.String() != "abc" {
		t.Errorf("expected abc, got %q", b.String())
	}
}

func TestMergeEnv(t *testing.T) {
	env := mergeEnv([]string{"A=1", "B=2"}, map[string]string{"B": "3", "C": "4"})
	want := []string{"A=1", "B=3", "C=4"}
	if strings.Join(env, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, env)
	}
}
