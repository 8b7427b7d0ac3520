package gitinfo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	return dir
}

func TestStatusNotARepo(t *testing.T) {
	requireGit(t)
	state, summary := Status(context.Background(), t.TempDir())
	if state != StateUnknown || summary != "Not a git repo" {
		t.Errorf("state=%v summary=%q", state, summary)
	}
}

func TestStatusCleanAndDirty(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	state, summary := Status(context.Background(), dir)
	if state != StateClean || !strings.Contains(summary, "clean") {
		t.Errorf("clean repo: state=%v summary=%q", state, summary)
	}

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	state, summary = Status(context.Background(), dir)
	if state != StateDirty || !strings.Contains(summary, "1 uncommitted") {
		t.Errorf("dirty repo: state=%v summary=%q", state, summary)
	}
}

func TestRunReturnsOutput(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	out, err := Run(context.Background(), dir, "branch --show-current", 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "main" {
		t.Errorf("out = %q", out)
	}
}

func TestRunFailureCarriesStderr(t *testing.T) {
	requireGit(t)
	out, err := Run(context.Background(), t.TempDir(), "log", 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if out == "" || out == "(no output)" {
		t.Errorf("stderr should be substituted: %q", out)
	}
}
