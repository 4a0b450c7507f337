// Package worktree manages the git worktrees sessions can work in.
package worktree

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Dir is the directory under the aoe home holding managed worktrees.
const Dir = "worktrees"

// Path returns where the worktree for a session lives.
func Path(home, sessionID string) string {
	return filepath.Join(home, Dir, sessionID)
}

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(ctx context.Context, dir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// Create adds a worktree at wtPath on a new branch. Returns the absolute
// worktree path.
func Create(ctx context.Context, repoDir, wtPath, branch string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "worktree", "add", wtPath, "-b", branch)
	cmd.Dir = repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git worktree add: %s: %w", strings.TrimSpace(string(out)), err)
	}

	absPath, err := filepath.Abs(wtPath)
	if err != nil {
		return wtPath, nil
	}
	return absPath, nil
}

// Remove removes a worktree and optionally deletes its branch.
func Remove(ctx context.Context, repoDir, wtPath, branch string, deleteBranch bool) error {
	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", wtPath)
	cmd.Dir = repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree remove: %s: %w", strings.TrimSpace(string(out)), err)
	}

	if deleteBranch && branch != "" {
		branchCmd := exec.CommandContext(ctx, "git", "branch", "-D", branch)
		branchCmd.Dir = repoDir
		branchCmd.Run() // best-effort
	}
	return nil
}
