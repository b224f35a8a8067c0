package gitops_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/signalnine/roundtrip/internal/gitops"
)

func createDefinitionsRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		c := exec.Command(args[0], args[1:]...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("%v: %s", err, out)
		}
	}
	run("git", "init")
	run("git", "config", "user.email", "test@test.com")
	run("git", "config", "user.name", "Test")
	caseDir := filepath.Join(dir, "01_TestDefinitions", "fizzbuzz", "python")
	os.MkdirAll(caseDir, 0o755)
	os.WriteFile(filepath.Join(caseDir, "initial_code.py"), []byte("def fizzbuzz(n):\n    return str(n)\n"), 0o644)
	run("git", "add", ".")
	run("git", "commit", "-m", "initial")
	run("git", "tag", "v1")
	return dir
}

func TestCloneAndCheckout(t *testing.T) {
	repo := createDefinitionsRepo(t)
	dest := filepath.Join(t.TempDir(), "defs")
	if err := gitops.CloneAndCheckout(context.Background(), repo, "v1", dest); err != nil {
		t.Fatalf("CloneAndCheckout: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dest, "01_TestDefinitions", "fizzbuzz", "python", "initial_code.py"))
	if err != nil {
		t.Fatalf("reading cloned file: %v", err)
	}
	if len(content) == 0 {
		t.Error("cloned initial_code.py is empty")
	}
}

func TestFetchDefinitionsReusesCheckout(t *testing.T) {
	repo := createDefinitionsRepo(t)
	cache := t.TempDir()
	first, err := gitops.FetchDefinitions(context.Background(), repo, "v1", cache)
	if err != nil {
		t.Fatalf("FetchDefinitions: %v", err)
	}
	marker := filepath.Join(first, "marker")
	os.WriteFile(marker, []byte("x"), 0o644)

	second, err := gitops.FetchDefinitions(context.Background(), repo, "v1", cache)
	if err != nil {
		t.Fatalf("FetchDefinitions (cached): %v", err)
	}
	if first != second {
		t.Errorf("checkout moved: %s vs %s", first, second)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("cached checkout was replaced")
	}
	entries, _ := os.ReadDir(cache)
	if len(entries) != 1 {
		t.Errorf("cache should hold one checkout, has %d entries", len(entries))
	}
}

func TestHeadCommit(t *testing.T) {
	repo := createDefinitionsRepo(t)
	rev, err := gitops.HeadCommit(repo)
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	if len(rev) < 40 {
		t.Errorf("unexpected revision %q", rev)
	}
}

func TestCloneRejectsOptionLikeRepo(t *testing.T) {
	err := gitops.CloneAndCheckout(context.Background(), "--upload-pack=evil", "v1", t.TempDir())
	if err == nil {
		t.Fatal("expected error for option-like repo")
	}
}

func TestCloneRejectsInvalidTag(t *testing.T) {
	for _, tag := range []string{"--option", "", " spaces", "../escape"} {
		err := gitops.CloneAndCheckout(context.Background(), "/tmp/repo", tag, t.TempDir())
		if err == nil {
			t.Errorf("expected error for tag %q", tag)
		}
	}
}
