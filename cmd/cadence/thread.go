package main

import (
	"fmt"
	"os"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/spf13/cobra"
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage persistent conversation threads",
	Long:  `List, inspect, and remove conversation threads in the configured store.`,
}

var threadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all persisted threads",
	Run: func(cmd *cobra.Command, args []string) {
		store, _, err := buildStore(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		threads, err := store.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing threads: %v\n", err)
			os.Exit(1)
		}
		if len(threads) == 0 {
			fmt.Println("No threads found.")
			return
		}

		fmt.Println("Threads:")
		for _, id := range threads {
			fmt.Println("- " + id)
		}
	},
}

var threadInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Inspect the checkpointed state of a thread",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, _, err := buildStore(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		state, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Error loading thread %q: %v\n", args[0], err)
			os.Exit(1)
		}

		data, err := domain.EncodeState(state)
		if err != nil {
			fmt.Printf("Error encoding state: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

var threadRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, _, err := buildStore(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		hasError := false
		for _, id := range args {
			if err := store.Delete(cmd.Context(), id); err != nil {
				fmt.Printf("Error removing %q: %v\n", id, err)
				hasError = true
			} else {
				fmt.Printf("Removed thread %q\n", id)
			}
		}
		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadLsCmd)
	threadCmd.AddCommand(threadInspectCmd)
	threadCmd.AddCommand(threadRmCmd)
}
