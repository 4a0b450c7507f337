package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zpdzap/aoe/internal/agent"
	"github.com/zpdzap/aoe/internal/docker"
	"github.com/zpdzap/aoe/internal/sandbox"
)

func sandboxCmd(profile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Inspect and manage session sandboxes",
	}
	cmd.AddCommand(
		checkCmd(profile),
		statusCmd(profile),
		reconcileCmd(profile),
		verifyImageCmd(profile),
		enableCmd(profile),
		disableCmd(profile),
	)
	return cmd
}

func checkCmd(profile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that docker is installed and its daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.mgr.Preflight(cmd.Context()); err != nil {
				return err
			}
			fmt.Println(statusRunning.Render("docker is available"))
			return nil
		},
	}
}

func statusCmd(profile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status [session]",
		Short: "Show the live container state of sandboxed sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if err := a.mgr.Preflight(ctx); err != nil {
				return err
			}
			instances, err := a.mgr.List()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				inst, err := a.find(args[0])
				if err != nil {
					return err
				}
				instances = instances[:0]
				instances = append(instances, inst)
			}

			shown := 0
			for _, inst := range instances {
				if !inst.IsSandboxed() {
					continue
				}
				status, err := a.mgr.Status(ctx, inst)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s  %s  %s\n",
					idStyle.Render(shortID(inst.ID)),
					nameStyle.Render(inst.Title),
					inst.Sandbox.ContainerName,
					renderStatus(status))
				shown++
			}
			if shown == 0 {
				fmt.Println(emptyStyle.Render("No sandboxed sessions."))
			}
			return nil
		},
	}
}

func reconcileCmd(profile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Forget recorded containers that no longer exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()

			changed, err := a.mgr.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			for _, inst := range changed {
				fmt.Printf("%s  %s  container gone, will be recreated on next start\n",
					idStyle.Render(shortID(inst.ID)), nameStyle.Render(inst.Title))
			}
			fmt.Println(messageStyle.Render(fmt.Sprintf("%d session(s) reconciled", len(changed))))
			return nil
		},
	}
}

func verifyImageCmd(profile *string) *cobra.Command {
	var img string
	cmd := &cobra.Command{
		Use:   "verify-image",
		Short: "Check that the sandbox image provides every agent tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if err := a.mgr.Preflight(ctx); err != nil {
				return err
			}
			runner, ok := a.rt.(agent.Runner)
			if !ok {
				return fmt.Errorf("runtime %T cannot run one-off containers", a.rt)
			}
			if img == "" {
				img = a.cfg.Sandbox.Image
			}

			missing, err := agent.VerifyImage(ctx, runner, img, docker.IsUnavailable)
			if err != nil {
				return err
			}
			for _, m := range missing {
				fmt.Println(errorStyle.Render(fmt.Sprintf("missing %s: %v", m.Tool.Binary, m.Err)))
			}
			if len(missing) > 0 {
				return fmt.Errorf("%s lacks %d of %d agent tools", img, len(missing), len(agent.Tools()))
			}
			fmt.Println(statusRunning.Render(img + " provides every agent tool"))
			return nil
		},
	}
	cmd.Flags().StringVar(&img, "image", "", "image to check (default from config)")
	return cmd
}

func enableCmd(profile *string) *cobra.Command {
	var (
		img  string
		yolo bool
	)
	cmd := &cobra.Command{
		Use:   "enable <session>",
		Short: "Run a session in a sandbox, creating or starting its container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()

			inst, err := a.find(args[0])
			if err != nil {
				return err
			}
			opts := sandbox.StartOptions{Image: img}
			if cmd.Flags().Changed("yolo") {
				opts.Yolo = &yolo
			}
			if err := a.mgr.Start(cmd.Context(), inst, opts); err != nil {
				return err
			}
			fmt.Printf("Session %s runs in %s\n", nameStyle.Render(inst.Title), inst.Sandbox.ContainerName)
			return nil
		},
	}
	cmd.Flags().StringVar(&img, "image", "", "sandbox image (default from config)")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "let the agent skip permission prompts inside the sandbox")
	return cmd
}

func disableCmd(profile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <session>",
		Short: "Remove a session's container and run it on the host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*profile)
			if err != nil {
				return err
			}
			defer a.Close()

			inst, err := a.find(args[0])
			if err != nil {
				return err
			}
			if err := a.mgr.Disable(cmd.Context(), inst); err != nil {
				return err
			}
			fmt.Printf("Session %s runs on the host\n", nameStyle.Render(inst.Title))
			return nil
		},
	}
}
