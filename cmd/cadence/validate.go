package main

import (
	"fmt"
	"os"

	"github.com/aretw0/cadence/pkg/adapters/yamlflow"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the flow definitions for consistency",
	Long:  `Parses and validates every flow definition in the flow directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("flows")
		if len(args) > 0 {
			dir = args[0]
		}

		loader, err := yamlflow.New(dir)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}

		names, err := loader.ListFlows()
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Flows are valid (%d): \n", len(names))
		for _, name := range names {
			fmt.Println("- " + name)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
