// Package gitops fetches test-case definitions pinned to a git tag.
package gitops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

func checkRef(repo, tag string) error {
	if repo == "" || strings.HasPrefix(repo, "-") {
		return fmt.Errorf("invalid repo %q", repo)
	}
	if !tagPattern.MatchString(tag) || strings.Contains(tag, "..") {
		return fmt.Errorf("invalid tag %q", tag)
	}
	return nil
}

func CloneAndCheckout(ctx context.Context, repo, tag, dest string) error {
	if err := checkRef(repo, tag); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--branch", tag, "--depth", "1", "--", repo, dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone: %s: %w", out, err)
	}
	return nil
}

// FetchDefinitions returns a checkout of repo at tag under cacheDir,
// cloning it on first use. Tags are treated as immutable, so an existing
// checkout is reused as is.
func FetchDefinitions(ctx context.Context, repo, tag, cacheDir string) (string, error) {
	if err := checkRef(repo, tag); err != nil {
		return "", err
	}
	name := strings.TrimSuffix(filepath.Base(repo), ".git")
	dest := filepath.Join(cacheDir, name+"@"+strings.ReplaceAll(tag, "/", "_"))
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		return dest, nil
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating definitions cache: %w", err)
	}
	// Clone next to dest and rename, so an interrupted clone is never
	// mistaken for a complete checkout.
	tmp, err := os.MkdirTemp(cacheDir, ".clone-*")
	if err != nil {
		return "", fmt.Errorf("creating clone dir: %w", err)
	}
	defer os.RemoveAll(tmp)
	if err := CloneAndCheckout(ctx, repo, tag, filepath.Join(tmp, "repo")); err != nil {
		return "", err
	}
	if err := os.Rename(filepath.Join(tmp, "repo"), dest); err != nil {
		return "", fmt.Errorf("moving checkout into place: %w", err)
	}
	return dest, nil
}

// HeadCommit returns the commit hash checked out in repoDir.
func HeadCommit(repoDir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
