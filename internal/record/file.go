// SPDX-License-Identifier: MPL-2.0

package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrClosed is returned when recording into a finalized transcript or recorder.
var ErrClosed = errors.New("transcript closed")

// fileTimeLayout is filesystem-safe and sorts chronologically.
const fileTimeLayout = "20060102T150405Z"

type (
	// FileRecorder writes one JSON-lines transcript per session under
	// <root>/<service>/<start>-<session>.jsonl. The file is created on the
	// first entry so sessions that never send anything leave no trace.
	FileRecorder struct {
		dir string

		mu     sync.Mutex
		open   map[string]*transcript
		closed bool
	}

	transcript struct {
		mu   sync.Mutex
		f    *os.File
		enc  *json.Encoder
		done bool
	}
)

// NewFileRecorder creates the service directory under root.
func NewFileRecorder(root, service string) (*FileRecorder, error) {
	dir := filepath.Join(root, service)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create records directory: %w", err)
	}
	return &FileRecorder{dir: dir, open: make(map[string]*transcript)}, nil
}

// Dir returns the directory transcripts are written to.
func (r *FileRecorder) Dir() string { return r.dir }

// Record implements Recorder.
func (r *FileRecorder) Record(session string, dir Direction, ts time.Time, data []byte) error {
	t, err := r.transcript(session, ts)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return fmt.Errorf("record %s: %w", session, ErrClosed)
	}
	if err := t.enc.Encode(newEntry(session, dir, ts.UTC(), data)); err != nil {
		return fmt.Errorf("record %s: %w", session, err)
	}
	return nil
}

// Close implements Recorder. Closing an unknown session is a no-op.
func (r *FileRecorder) Close(session string) error {
	r.mu.Lock()
	t, ok := r.open[session]
	delete(r.open, session)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return t.close()
}

// Shutdown closes every open transcript. Later records fail with ErrClosed.
func (r *FileRecorder) Shutdown() error {
	r.mu.Lock()
	open := r.open
	r.open = make(map[string]*transcript)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, t := range open {
		errs = append(errs, t.close())
	}
	return errors.Join(errs...)
}

func (r *FileRecorder) transcript(session string, ts time.Time) (*transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if t, ok := r.open[session]; ok {
		return t, nil
	}

	name := fmt.Sprintf("%s-%s.jsonl", ts.UTC().Format(fileTimeLayout), filepath.Base(session))
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	t := &transcript{f: f, enc: json.NewEncoder(f)}
	r.open[session] = t
	return t, nil
}

func (t *transcript) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	return t.f.Close()
}
