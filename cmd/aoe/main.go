package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/zpdzap/aoe/image"
	"github.com/zpdzap/aoe/internal/config"
)

func main() {
	root := rootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var profile string
	root := &cobra.Command{
		Use:           "aoe",
		Short:         "Agent of Empires: run AI coding agent sessions, optionally sandboxed in containers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&profile, "profile", "p", "", "session profile (default from config or $AOE_PROFILE)")

	root.AddCommand(
		initCmd(),
		addCmd(&profile),
		listCmd(&profile),
		rmCmd(&profile),
		attachCmd(&profile),
		sandboxCmd(&profile),
	)
	return root
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config and the sandbox image Dockerfile",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.HomeDir(os.LookupEnv)
			if err != nil {
				return err
			}

			if config.Exists(home) && !force {
				fmt.Println("aoe already initialized (use --force to overwrite).")
				return nil
			}

			if err := config.Save(home, config.Default()); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			path, err := image.Write(home)
			if err != nil {
				return err
			}

			fmt.Println(messageStyle.Render("Initialized aoe in " + home))
			fmt.Printf("  Config: %s/%s\n", home, config.ConfigFile)
			fmt.Printf("  Dockerfile: %s\n", path)
			fmt.Printf("\nBuild the sandbox image with:\n  docker build -t %s -f %s %s\n", config.DefaultImage, path, home)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
