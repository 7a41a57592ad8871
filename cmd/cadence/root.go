package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/adapters/file"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	openaiadapter "github.com/aretw0/cadence/pkg/adapters/openai"
	redisadapter "github.com/aretw0/cadence/pkg/adapters/redis"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/openai/openai-go"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence is a flow orchestration engine for dialogue systems",
	Long: `Cadence keeps multi-turn conversations coherent: flows pause and resume
around interruptions, corrections rewind just far enough, and every turn ends
at a checkpoint that survives restarts.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("flows", "./flows", "Directory containing flow definition YAML files")
	rootCmd.PersistentFlags().String("store", "memory", "Checkpoint store: memory, file, or redis")
	rootCmd.PersistentFlags().String("store-path", "", "Base directory for the file store")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address for the redis store")
	rootCmd.PersistentFlags().String("redis-password", "", "Redis password")
	rootCmd.PersistentFlags().Int("redis-db", 0, "Redis database number")
	rootCmd.PersistentFlags().String("model", "", "OpenAI model for understanding (default gpt-4o-mini)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

func newLogger(cmd *cobra.Command, json bool) *slog.Logger {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	if json {
		return logging.NewJSON(level)
	}
	return logging.New(level)
}

// buildStore resolves the checkpoint store from flags. The returned locker is
// non-nil only for stores that need cross-process coordination.
func buildStore(cmd *cobra.Command) (ports.StateStore, ports.DistributedLocker, error) {
	kind, _ := cmd.Flags().GetString("store")
	switch kind {
	case "memory":
		return memory.NewStore(), nil, nil
	case "file":
		path, _ := cmd.Flags().GetString("store-path")
		return file.New(path), nil, nil
	case "redis":
		addr, _ := cmd.Flags().GetString("redis-addr")
		password, _ := cmd.Flags().GetString("redis-password")
		db, _ := cmd.Flags().GetInt("redis-db")

		store := redisadapter.New(addr, password, db)
		locker := redisadapter.NewLocker(store.Client(), "cadence:lock:")
		return store, locker, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (expected memory, file, or redis)", kind)
	}
}

func newUnderstander(cmd *cobra.Command, logger *slog.Logger) *openaiadapter.Understander {
	opts := []openaiadapter.Option{openaiadapter.WithLogger(logger)}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		opts = append(opts, openaiadapter.WithModel(openai.ChatModel(model)))
	}
	return openaiadapter.New(opts...)
}

// buildEngine wires the full engine from flags, shared by chat and serve.
func buildEngine(cmd *cobra.Command, logger *slog.Logger, extra ...cadence.Option) (*cadence.Engine, error) {
	flowsDir, _ := cmd.Flags().GetString("flows")

	store, locker, err := buildStore(cmd)
	if err != nil {
		return nil, err
	}

	opts := []cadence.Option{
		cadence.WithStateStore(store),
		cadence.WithLogger(logger),
	}
	if locker != nil {
		opts = append(opts, cadence.WithDistributedLocker(locker))
	}
	opts = append(opts, extra...)

	return cadence.New(flowsDir, newUnderstander(cmd, logger), opts...)
}
