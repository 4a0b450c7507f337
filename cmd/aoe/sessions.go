package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zpdzap/aoe/internal/agent"
	"github.com/zpdzap/aoe/internal/docker"
	"github.com/zpdzap/aoe/internal/sandbox"
	"github.com/zpdzap/aoe/internal/session"
	"github.com/zpdzap/aoe/internal/worktree"
)

func addCmd(profile *string) *cobra.Command {
	var (
		title, tool, group, branch, img string
		sandboxed, yolo                 bool
	)
	cmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Add a session for a project directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			projectPath, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			if fi, err := os.Stat(projectPath); err != nil || !fi.IsDir() {
				return fmt.Errorf("%s is not a directory", projectPath)
			}
			if _, err := agent.Lookup(tool); err != nil {
				return err
			}

			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if title == "" {
				title = filepath.Base(projectPath)
			}
			inst := session.NewInstance(title, projectPath)
			inst.Tool = tool
			inst.GroupPath = group

			var opts *sandbox.StartOptions
			if sandboxed {
				opts = &sandbox.StartOptions{Image: img}
				if cmd.Flags().Changed("yolo") {
					opts.Yolo = &yolo
				}
			}
			if err := addSession(ctx, a, inst, branch, opts); err != nil {
				return err
			}

			fmt.Printf("Added session %s (%s)\n", nameStyle.Render(inst.Title), idStyle.Render(inst.ID))
			if inst.IsSandboxed() {
				fmt.Printf("  Sandbox: %s\n", inst.Sandbox.ContainerName)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "session title (default: directory name)")
	cmd.Flags().StringVar(&tool, "tool", session.DefaultTool, "agent tool: "+strings.Join(agent.Names(), ", "))
	cmd.Flags().StringVarP(&group, "group", "g", "", "group path")
	cmd.Flags().StringVarP(&branch, "worktree", "w", "", "create a git worktree on this new branch")
	cmd.Flags().BoolVarP(&sandboxed, "sandbox", "s", false, "run the session in a container")
	cmd.Flags().StringVar(&img, "image", "", "sandbox image (default from config)")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "let the agent skip permission prompts inside the sandbox")
	return cmd
}

// addSession records inst, creating its worktree when branch is set and its
// sandbox when opts is non-nil. A sandboxed add checks the runtime before
// anything is written to disk.
func addSession(ctx context.Context, a *app, inst *session.Instance, branch string, opts *sandbox.StartOptions) error {
	if opts != nil {
		if err := a.mgr.Preflight(ctx); err != nil {
			return err
		}
	}

	if branch != "" {
		repo := inst.ProjectPath
		if !worktree.IsRepo(ctx, repo) {
			return fmt.Errorf("%s is not a git repository", repo)
		}
		wtPath, err := worktree.Create(ctx, repo, worktree.Path(a.home, inst.ID), branch)
		if err != nil {
			return err
		}
		inst.Worktree = &session.WorktreeInfo{Branch: branch, MainRepoPath: repo, ManagedByAOE: true}
		inst.ProjectPath = wtPath
	}

	if opts == nil {
		return session.Put(a.store, inst)
	}
	if err := a.mgr.Start(ctx, inst, *opts); err != nil {
		// Start persists the session once it gets past its own checks; before
		// that nothing references the worktree.
		if inst.Sandbox == nil && inst.Worktree != nil {
			if rerr := worktree.Remove(ctx, inst.Worktree.MainRepoPath, inst.ProjectPath, branch, true); rerr != nil {
				a.log.Warn("worktree removal failed", zap.String("session", inst.ID), zap.Error(rerr))
			}
		}
		return err
	}
	return nil
}

func listCmd(profile *string) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()

			instances, err := a.mgr.List()
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Println(emptyStyle.Render("No sessions. Add one with `aoe add`."))
				return nil
			}
			fmt.Println(renderTable(instances))
			return nil
		},
	}
}

func renderTable(instances []*session.Instance) string {
	cols := []string{"ID", "TITLE", "TOOL", "MODE", "PATH"}
	rows := make([][]string, 0, len(instances))
	for _, inst := range instances {
		rows = append(rows, []string{
			idStyle.Render(shortID(inst.ID)),
			nameStyle.Render(inst.Title),
			inst.Tool,
			renderState(inst),
			pathStyle.Render(inst.ProjectPath),
		})
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	line := func(cells []string, style *lipgloss.Style) {
		for i, cell := range cells {
			if style != nil {
				cell = style.Render(cell)
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}
		b.WriteString("\n")
	}
	line(cols, &headerStyle)
	for _, row := range rows {
		line(row, nil)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func rmCmd(profile *string) *cobra.Command {
	var keepWorktree bool
	cmd := &cobra.Command{
		Use:     "rm <session>",
		Aliases: []string{"remove"},
		Short:   "Remove a session and its sandbox",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			inst, err := a.find(args[0])
			if err != nil {
				return err
			}
			if err := a.mgr.Delete(ctx, inst); err != nil {
				return err
			}

			if wt := inst.Worktree; wt != nil && wt.ManagedByAOE && !keepWorktree {
				if err := worktree.Remove(ctx, wt.MainRepoPath, inst.ProjectPath, wt.Branch, false); err != nil {
					a.log.Warn("worktree removal failed", zap.String("session", inst.ID), zap.Error(err))
					fmt.Fprintln(os.Stderr, errorStyle.Render("Warning: "+err.Error()))
				}
			}

			fmt.Printf("Removed session %s\n", nameStyle.Render(inst.Title))
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepWorktree, "keep-worktree", false, "leave the managed git worktree in place")
	return cmd
}

func attachCmd(profile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <session>",
		Short: "Run the session's agent in this terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			inst, err := a.find(args[0])
			if err != nil {
				return err
			}

			var c *exec.Cmd
			if inst.IsSandboxed() {
				if err := a.mgr.Start(ctx, inst, sandbox.StartOptions{}); err != nil {
					return err
				}
				execArgs, err := sandbox.ExecArgs(inst)
				if err != nil {
					return err
				}
				binary := a.cfg.Sandbox.Binary
				if binary == "" {
					binary = docker.DefaultBinary
				}
				c = exec.CommandContext(ctx, binary, execArgs...)
			} else {
				tool, err := agent.Lookup(inst.Tool)
				if err != nil {
					return err
				}
				argv := tool.Command(false)
				c = exec.CommandContext(ctx, argv[0], argv[1:]...)
				c.Dir = inst.ProjectPath
			}
			c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
			return c.Run()
		},
	}
}
