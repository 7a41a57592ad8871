package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/internal/tui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long:  `Starts a terminal conversation loop against the flows in the flow directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		plain, _ := cmd.Flags().GetBool("plain")
		threadID, _ := cmd.Flags().GetString("thread")
		if threadID == "" {
			threadID = uuid.NewString()
		}

		logger := newLogger(cmd, false)
		engine, err := buildEngine(cmd, logger)
		if err != nil {
			fmt.Printf("Error initializing cadence: %v\n", err)
			os.Exit(1)
		}

		if !plain {
			tui.PrintBanner(cadence.Version)
		}

		runner := cadence.NewRunner(threadID)
		runner.Input = os.Stdin
		runner.Output = os.Stdout
		runner.Headless = plain
		if !plain {
			runner.Renderer = tui.NewRenderer()
		}

		if err := runner.Run(context.Background(), engine); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("thread", "", "Thread ID to converse on (default: a fresh UUID)")
	chatCmd.Flags().Bool("plain", false, "Disable the banner and markdown rendering")

	// Make 'chat' the default when no subcommand is given.
	rootCmd.Run = chatCmd.Run
}
