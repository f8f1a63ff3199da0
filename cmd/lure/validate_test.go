// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const sshService = `proto: ssh
address: 127.0.0.1:2222
commands:
  - parser: ^id$
    handler: uid=0(root) gid=0(root) groups=0(root)
  - parser: ^cat (\S+)$
    handler: "@docker sandbox cat {{$1}}"
`

func writeService(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestValidate_Success(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeService(t, dir, "edge/web.yml", sshService)

	stdout, stderr, err := execute(t.Context(), t, Dependencies{}, "validate", "--services", dir)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, stderr)
	}
	for _, want := range []string{"Service Validation", "edge-web", "ssh on 127.0.0.1:2222", "2 rules, 1 live", "1 service(s) valid", "live handler(s)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "no services",
			files:   nil,
			wantErr: "no service",
		},
		{
			name:    "invalid rule",
			files:   map[string]string{"web.yml": "proto: ssh\naddress: :22\ncommands:\n  - parser: \"(\"\n    handler: x\n"},
			wantErr: "compile rules of service web",
		},
		{
			name:    "unknown protocol",
			files:   map[string]string{"tn.toml": "proto = \"telnet\"\naddress = \":23\"\n"},
			wantErr: "unknown protocol",
		},
		{
			name:    "bad ssh settings",
			files:   map[string]string{"web.yml": "proto: ssh\naddress: :22\nconfig:\n  accept_all: false\n"},
			wantErr: "no credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			for name, content := range tt.files {
				writeService(t, dir, name, content)
			}

			_, stderr, err := execute(t.Context(), t, Dependencies{}, "validate", "--services", dir)
			var exitErr *ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != 1 {
				t.Fatalf("validate error = %v, want *ExitError with code 1", err)
			}
			if !strings.Contains(strings.ToLower(stderr), tt.wantErr) {
				t.Errorf("stderr should mention %q:\n%s", tt.wantErr, stderr)
			}
		})
	}
}

func TestValidate_Watch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeService(t, dir, "web.yml", sshService)

	ctx, cancel := context.WithCancel(t.Context())
	var stdout syncBuffer
	errCh := make(chan error, 1)
	go func() {
		root := newRootCommand(NewApp(Dependencies{Stdout: &stdout, Stderr: io.Discard}))
		root.SetOut(&stdout)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"validate", "--services", dir, "--watch"})
		errCh <- root.ExecuteContext(ctx)
	}()

	waitForOutput(t, &stdout, "watching")
	writeService(t, dir, "db.toml", "proto = \"ssh\"\naddress = \":2223\"\n")
	waitForOutput(t, &stdout, "2 service(s) valid")

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("validate --watch = %v, want nil after cancel", err)
	}
	if !strings.Contains(stdout.String(), "changed: db.toml") {
		t.Errorf("output should list the changed file:\n%s", stdout.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(b.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("output never contained %q:\n%s", want, b.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
