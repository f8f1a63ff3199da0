// SPDX-License-Identifier: MPL-2.0

package command

import "testing"

func TestParseDirective(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		target  string
		body    string
		wantErr bool
	}{
		{"@docker img sh -c 'echo a b'", "img", "sh -c 'echo a b'", false},
		{"@docker img  ls   -la", "img", "ls   -la", false},
		{"@docker img\tuname", "img", "uname", false},
		{"@docker img", "", "", true},
		{"@docker ", "", "", true},
		{"docker img ls", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			d, err := ParseDirective(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDirective(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if d.Target != tt.target || d.Body != tt.body {
				t.Errorf("ParseDirective(%q) = %+v, want {%s %s}", tt.in, d, tt.target, tt.body)
			}
		})
	}
}

func TestNormalizeOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stderr string
		stdout string
		want   string
	}{
		{"stdout only", "", "a\nb\n", "a\r\nb"},
		{"stderr first", "err\n", "out\n", "errout"},
		{"crlf kept", "", "a\r\nb", "a\r\nb"},
		{"empty", " \n", "\t", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeOutput([]byte(tt.stderr), []byte(tt.stdout)); got != tt.want {
				t.Errorf("NormalizeOutput = %q, want %q", got, tt.want)
			}
		})
	}
}
