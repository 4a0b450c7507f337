// Package session holds the persisted session records and the stores that
// load and save them.
package session

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTool is the agent a session runs when none is given.
const DefaultTool = "claude"

// Instance is one agent session.
type Instance struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	ProjectPath string        `json:"project_path"`
	GroupPath   string        `json:"group_path,omitempty"`
	Tool        string        `json:"tool"`
	CreatedAt   time.Time     `json:"created_at"`
	Worktree    *WorktreeInfo `json:"worktree_info,omitempty"`
	Sandbox     *SandboxInfo  `json:"sandbox_info,omitempty"`
}

// WorktreeInfo records a git worktree the session works in.
type WorktreeInfo struct {
	Branch       string `json:"branch"`
	MainRepoPath string `json:"main_repo_path"`
	ManagedByAOE bool   `json:"managed_by_aoe"`
}

// NewInstance creates a host session for projectPath with a fresh id.
func NewInstance(title, projectPath string) *Instance {
	if title == "" {
		title = filepath.Base(projectPath)
	}
	return &Instance{
		ID:          newID(),
		Title:       title,
		ProjectPath: projectPath,
		Tool:        DefaultTool,
		CreatedAt:   time.Now(),
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// IsSandboxed reports whether the session currently runs in a sandbox.
func (i *Instance) IsSandboxed() bool {
	return i.Sandbox != nil && i.Sandbox.Enabled
}

// Find looks an instance up by id, unique id prefix, or title.
func Find(instances []*Instance, ref string) (*Instance, bool) {
	if ref == "" {
		return nil, false
	}
	var match *Instance
	for _, inst := range instances {
		if inst.ID == ref {
			return inst, true
		}
		if inst.Title == ref || strings.HasPrefix(inst.ID, ref) {
			if match != nil {
				return nil, false
			}
			match = inst
		}
	}
	return match, match != nil
}
