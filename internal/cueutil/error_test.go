// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()

		if err := FormatError(nil, "ssh.yml"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("non-CUE error is wrapped with filepath", func(t *testing.T) {
		t.Parallel()

		orig := errors.New("boom")
		err := FormatError(orig, "ssh.yml")
		if !errors.Is(err, orig) {
			t.Errorf("expected wrapped error, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "ssh.yml: ") {
			t.Errorf("error should start with filepath, got %q", err)
		}
	})
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     []string
		expected string
	}{
		{"empty path", nil, ""},
		{"single element", []string{"proto"}, "proto"},
		{"nested path", []string{"config", "prompt"}, "config.prompt"},
		{"array index", []string{"commands", "0", "parser"}, "commands[0].parser"},
		{"nested arrays", []string{"config", "credentials", "root", "1"}, "config.credentials.root[1]"},
		{"leading digits stay a key", []string{"0", "x"}, "0.x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := formatPath(tt.path); got != tt.expected {
				t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestCheckFileSize(t *testing.T) {
	t.Parallel()

	if err := CheckFileSize(make([]byte, 100), 100, "a.yml"); err != nil {
		t.Errorf("data at limit: unexpected error %v", err)
	}
	if err := CheckFileSize(nil, 100, "a.yml"); err != nil {
		t.Errorf("empty data: unexpected error %v", err)
	}

	err := CheckFileSize(make([]byte, 101), 100, "a.yml")
	if err == nil {
		t.Fatal("expected error for oversized data")
	}
	for _, want := range []string{"a.yml", "101", "100"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should contain %q", err, want)
		}
	}
}
