package visualization

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	const url = "http://localhost:1234/"

	tests := []struct {
		goos    string
		program string
		wantErr bool
	}{
		{"linux", "xdg-open", false},
		{"freebsd", "xdg-open", false},
		{"darwin", "open", false},
		{"windows", "cmd", false},
		{"plan9", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, url)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "unsupported platform") {
					t.Errorf("browserCommand(%s) error = %v, want unsupported platform", tt.goos, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("browserCommand(%s): %v", tt.goos, err)
			}
			if got := filepath.Base(cmd.Args[0]); got != tt.program {
				t.Errorf("program = %q, want %q", got, tt.program)
			}
			if last := cmd.Args[len(cmd.Args)-1]; last != url {
				t.Errorf("last arg = %q, want the URL", last)
			}
		})
	}
}
