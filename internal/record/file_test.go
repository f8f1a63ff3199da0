// SPDX-License-Identifier: MPL-2.0

package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open transcript: %v", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestFileRecorder_WritesOneTranscriptPerSession(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rec, err := NewFileRecorder(root, "ssh-alpha")
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}

	start := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(rec.Record("s1", Inbound, start, []byte("ls")))
	must(rec.Record("s2", Inbound, start.Add(time.Second), []byte("id")))
	must(rec.Record("s1", Outbound, start.Add(2*time.Second), []byte("total 0\r\n")))
	must(rec.Close("s1"))
	must(rec.Close("s2"))
	must(rec.Close("never-opened"))

	path := filepath.Join(root, "ssh-alpha", "20240501T123000Z-s1.jsonl")
	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Direction != Inbound || entries[0].Data != "ls" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Direction != Outbound || entries[1].Data != "total 0\r\n" {
		t.Errorf("second entry = %+v", entries[1])
	}

	files, _ := filepath.Glob(filepath.Join(root, "ssh-alpha", "*.jsonl"))
	if len(files) != 2 {
		t.Errorf("transcripts = %d, want 2", len(files))
	}
}

func TestFileRecorder_KeepsRawBytes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rec, err := NewFileRecorder(root, "ssh")
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}
	start := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	payload := []byte{'\x7f', 'E', 'L', 'F', 0xff, 0xfe, 0x00}
	if err := rec.Record("bin", Inbound, start, payload); err != nil {
		t.Fatal(err)
	}
	if err := rec.Record("bin", Inbound, start, []byte("uname -a")); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close("bin"); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, filepath.Join(root, "ssh", "20240501T123000Z-bin.jsonl"))
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if !bytes.Equal(entries[0].Raw, payload) {
		t.Errorf("raw = %v, want %v", entries[0].Raw, payload)
	}
	if entries[1].Raw != nil || entries[1].Data != "uname -a" {
		t.Errorf("text entry = %+v, want data only", entries[1])
	}
}

func TestFileRecorder_Shutdown(t *testing.T) {
	t.Parallel()

	rec, err := NewFileRecorder(t.TempDir(), "svc")
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}
	if err := rec.Record("s", Inbound, time.Now(), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := rec.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := rec.Record("s", Inbound, time.Now(), []byte("y")); !errors.Is(err, ErrClosed) {
		t.Errorf("Record after Shutdown = %v, want ErrClosed", err)
	}
}

func TestFileRecorder_SessionIDCannotEscapeDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rec, err := NewFileRecorder(root, "svc")
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Record("../../evil", Inbound, time.Now(), nil); err != nil {
		t.Fatal(err)
	}
	_ = rec.Shutdown()

	files, _ := filepath.Glob(filepath.Join(root, "svc", "*-evil.jsonl"))
	if len(files) != 1 {
		t.Errorf("expected transcript inside service dir, found %v", files)
	}
}
