package main

import (
	"path/filepath"
	"testing"

	"github.com/reelsmith/reelsmith-agent/internal/db"
	"github.com/reelsmith/reelsmith-agent/internal/jobs"
	"github.com/reelsmith/reelsmith-agent/internal/logging"
)

func TestEnsureAuthToken_Stable(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), logging.NewLogger("error"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	defer database.Close()
	repo := jobs.NewRepository(database.Conn())

	first, err := ensureAuthToken(repo)
	if err != nil {
		t.Fatalf("ensureAuthToken() error = %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}

	second, err := ensureAuthToken(repo)
	if err != nil {
		t.Fatalf("ensureAuthToken() error = %v", err)
	}
	if first != second {
		t.Error("token changed between calls")
	}
}

func TestTruncateLeft(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"/short", 10, "/short"},
		{"/home/user/.reelsmith/renders", 12, "...h/renders"},
	}
	for _, tt := range tests {
		if got := truncateLeft(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateLeft(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"serve", "render", "plan", "doctor", "fetch", "caption"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
