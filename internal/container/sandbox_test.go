// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSandbox_Exec(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.Default = MockResponse{Stdout: "root\n", Stderr: "note\n"}
	sb := NewSandbox(newMockEngine(t, recorder))

	res, err := sb.Exec(context.Background(), "honeybox", "id -un; echo 'a b'")
	if err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	if string(res.Stdout) != "root\n" || string(res.Stderr) != "note\n" || res.ExitCode != 0 {
		t.Errorf("Exec() = %+v", res)
	}
	recorder.AssertArgs(t, "exec", "honeybox", "sh", "-c", "id -un; echo 'a b'")
}

func TestSandbox_WorkDirAndEnv(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	sb := NewSandbox(newMockEngine(t, recorder),
		WithWorkDir("/root"),
		WithEnv(map[string]string{"TERM": "xterm", "HISTFILE": "/dev/null"}),
	)

	if _, err := sb.Exec(context.Background(), "honeybox", "pwd"); err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	recorder.AssertArgs(t, "exec", "-w", "/root", "-e", "HISTFILE=/dev/null", "-e", "TERM=xterm", "honeybox", "sh", "-c", "pwd")
}

func TestSandbox_CommandFailureIsAResult(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.Default = MockResponse{Stderr: "sh: 1: nope: not found", ExitCode: 127}
	sb := NewSandbox(newMockEngine(t, recorder), WithBackoff(time.Millisecond))

	res, err := sb.Exec(context.Background(), "honeybox", "nope")
	if err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	if res.ExitCode != 127 || string(res.Stderr) != "sh: 1: nope: not found" {
		t.Errorf("Exec() = %+v", res)
	}
	if recorder.Count() != 1 {
		t.Errorf("command failures must not be retried, got %d invocations", recorder.Count())
	}
}

func TestSandbox_RetriesTransientEngineFailure(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.Script = []MockResponse{
		{Stderr: "OCI runtime error: exec failed", ExitCode: 125},
		{Stdout: "ok"},
	}
	sb := NewSandbox(newMockEngine(t, recorder), WithBackoff(time.Millisecond), WithShell("bash"))

	res, err := sb.Exec(context.Background(), "honeybox", "true")
	if err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	if string(res.Stdout) != "ok" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "ok")
	}
	if recorder.Count() != 2 {
		t.Errorf("invocations = %d, want 2", recorder.Count())
	}
	recorder.AssertArgs(t, "exec", "honeybox", "bash", "-c", "true")
}

func TestSandbox_GivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.Default = MockResponse{Stderr: "OCI runtime error", ExitCode: 125}
	sb := NewSandbox(newMockEngine(t, recorder), WithRetries(1), WithBackoff(time.Millisecond))

	res, err := sb.Exec(context.Background(), "honeybox", "true")
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected *EngineError, got %v", err)
	}
	if res.ExitCode != 125 {
		t.Errorf("exit code = %d, want 125", res.ExitCode)
	}
	if recorder.Count() != 2 {
		t.Errorf("invocations = %d, want 2", recorder.Count())
	}
}

func TestSandbox_PermanentEngineFailure(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.Default = MockResponse{Stderr: "unknown flag: --bogus", ExitCode: 125}
	sb := NewSandbox(newMockEngine(t, recorder), WithBackoff(time.Millisecond))

	if _, err := sb.Exec(context.Background(), "honeybox", "true"); err == nil {
		t.Fatal("expected error")
	}
	if recorder.Count() != 1 {
		t.Errorf("invocations = %d, want 1", recorder.Count())
	}
}
