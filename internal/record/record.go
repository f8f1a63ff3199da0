// SPDX-License-Identifier: MPL-2.0

package record

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
	"unicode/utf8"
)

// Direction tags a transcript entry.
type Direction string

const (
	// Inbound is data received from the peer.
	Inbound Direction = "in"
	// Outbound is data sent to the peer.
	Outbound Direction = "out"
	// Meta is session metadata (open, close, peer details).
	Meta Direction = "meta"
)

type (
	// Recorder is the transcript sink shared by all sessions of a service.
	// Implementations must be safe for concurrent use.
	Recorder interface {
		// Record appends data to the transcript of session.
		Record(session string, dir Direction, ts time.Time, data []byte) error
		// Close finalizes the transcript of session.
		Close(session string) error
	}

	// Entry is one transcript line.
	Entry struct {
		Time      time.Time `json:"time"`
		Session   string    `json:"session"`
		Direction Direction `json:"direction"`
		Data      string    `json:"data"`
		// Raw holds the exact bytes when Data is not valid UTF-8, since JSON
		// encoding replaces invalid sequences.
		Raw []byte `json:"raw,omitempty"`
	}

	// Nop discards everything.
	Nop struct{}

	// Memory keeps transcripts in memory. It is meant for tests and dry runs.
	Memory struct {
		mu      sync.Mutex
		entries map[string][]Entry
		closed  map[string]bool
	}
)

// Record implements Recorder.
func (Nop) Record(string, Direction, time.Time, []byte) error { return nil }

// Close implements Recorder.
func (Nop) Close(string) error { return nil }

func newEntry(session string, dir Direction, ts time.Time, data []byte) Entry {
	e := Entry{Time: ts, Session: session, Direction: dir, Data: string(data)}
	if !utf8.Valid(data) {
		e.Raw = bytes.Clone(data)
	}
	return e
}

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Entry), closed: make(map[string]bool)}
}

// Record implements Recorder.
func (m *Memory) Record(session string, dir Direction, ts time.Time, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed[session] {
		return fmt.Errorf("record %s: %w", session, ErrClosed)
	}
	m.entries[session] = append(m.entries[session], newEntry(session, dir, ts, data))
	return nil
}

// Close implements Recorder.
func (m *Memory) Close(session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[session] = true
	return nil
}

// Entries returns a copy of the transcript of session.
func (m *Memory) Entries(session string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries[session]...)
}

// Closed reports whether Close was called for session.
func (m *Memory) Closed(session string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed[session]
}

// Sessions returns the number of sessions with at least one entry.
func (m *Memory) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// IDs returns the sorted ids of recorded sessions.
func (m *Memory) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.entries))
}
