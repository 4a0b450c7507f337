// Package agent knows the agent tools a session can run and how to launch
// them, on the host or inside a sandbox container.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Tool is an agent CLI the sandbox image ships.
type Tool struct {
	Name   string
	Binary string
	// Pattern appears in the image Dockerfile's install step for this tool.
	Pattern string
	// YoloFlag makes the tool skip permission prompts; empty when the tool has
	// no such mode.
	YoloFlag string
	// ConfigDir is where the tool keeps credentials inside the container. It
	// is backed by a named volume so logins survive sandbox recreation.
	ConfigDir string
}

var tools = []Tool{
	{
		Name:      "claude",
		Binary:    "claude",
		Pattern:   "claude.ai/install",
		YoloFlag:  "--dangerously-skip-permissions",
		ConfigDir: "/root/.claude",
	},
	{
		Name:      "opencode",
		Binary:    "opencode",
		Pattern:   "opencode.ai/install",
		ConfigDir: "/root/.local/share/opencode",
	},
	{
		Name:      "codex",
		Binary:    "codex",
		Pattern:   "@openai/codex",
		YoloFlag:  "--dangerously-bypass-approvals-and-sandbox",
		ConfigDir: "/root/.codex",
	},
}

// ErrUnknownTool is returned for tool names outside the supported set.
var ErrUnknownTool = errors.New("unknown agent tool")

// Tools returns the supported tools in a stable order.
func Tools() []Tool {
	return append([]Tool(nil), tools...)
}

// Names returns the supported tool names.
func Names() []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// Lookup returns the tool called name.
func Lookup(name string) (Tool, error) {
	for _, t := range tools {
		if t.Name == name {
			return t, nil
		}
	}
	return Tool{}, fmt.Errorf("%w %q (supported: %s)", ErrUnknownTool, name, strings.Join(Names(), ", "))
}

// AuthVolume is the named volume holding the tool's credentials.
func (t Tool) AuthVolume() string {
	return "aoe-auth-" + t.Name
}

// Command returns the argv that starts the tool. yolo is ignored by tools
// without a permission-skipping mode.
func (t Tool) Command(yolo bool) []string {
	argv := []string{t.Binary}
	if yolo && t.YoloFlag != "" {
		argv = append(argv, t.YoloFlag)
	}
	return argv
}

// ExecArgs returns the docker arguments that run argv interactively in a
// running sandbox container.
func ExecArgs(container, workdir string, argv []string) []string {
	args := []string{"exec", "-it"}
	if workdir != "" {
		args = append(args, "-w", workdir)
	}
	args = append(args, container)
	return append(args, argv...)
}

// Runner runs a command in a throwaway container and returns its output.
type Runner interface {
	RunOnce(ctx context.Context, image string, cmd ...string) ([]byte, error)
}

// Missing lists the tools whose binary could not be found in an image.
type Missing struct {
	Tool Tool
	Err  error
}

// VerifyImage checks that every supported tool's binary resolves inside image.
// It returns the tools that are missing; err is only set when the check itself
// cannot run, e.g. the runtime is unavailable.
func VerifyImage(ctx context.Context, r Runner, image string, unavailable func(error) bool) ([]Missing, error) {
	var missing []Missing
	for _, t := range tools {
		out, err := r.RunOnce(ctx, image, "which", t.Binary)
		if err != nil {
			if unavailable != nil && unavailable(err) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			missing = append(missing, Missing{Tool: t, Err: err})
			continue
		}
		if strings.TrimSpace(string(out)) == "" {
			missing = append(missing, Missing{Tool: t, Err: fmt.Errorf("which %s printed nothing", t.Binary)})
		}
	}
	return missing, nil
}
