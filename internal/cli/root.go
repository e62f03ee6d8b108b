// Package cli implements the dreambot chat tester command.
package cli

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/services/conversation"
	"github.com/dreambot-go/internal/services/responses"
	"github.com/dreambot-go/internal/services/storage"
	"github.com/dreambot-go/pkg/logger"
	"github.com/dreambot-go/pkg/zalgo"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	userID      string
	seed        int64
	storageType string
	verbose     bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "chattester",
	Short: "Chat with the Dreambot engine from a terminal",
	Long:  "Runs the conversation engine locally as a simulated Discord user. No bot token is needed.",
	RunE:  runTester,
}

func init() {
	RootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults when empty)")
	RootCmd.Flags().StringVarP(&userID, "user", "u", "123456789", "Simulated user ID")
	RootCmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for reproducible sessions (0 uses the clock)")
	RootCmd.Flags().StringVar(&storageType, "storage", "memory", "Usage ledger backend: memory, sqlite or redis")
	RootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show engine logs")
}

func runTester(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.Storage.Type = storageType
	if storageType == "memory" {
		cfg.Storage.Fallback = "none"
	}
	if !verbose {
		cfg.Logging.Level = "error"
	}
	cfg.Logging.Output = "stderr"

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	manager, err := storage.NewManager(cfg, log, nil)
	if err != nil {
		return fmt.Errorf("failed to open usage ledger: %w", err)
	}
	defer manager.Close()

	catalog, err := responses.LoadFile(cfg.Engine.CatalogPath)
	if err != nil {
		return err
	}

	contexts := conversation.NewContextManager(cfg.Engine, log, contextRand(newRand(1))...)
	selector := conversation.NewSelector(manager, log, newRand(2))
	engine, err := conversation.NewEngine(catalog, contexts, selector, cfg.Engine, log)
	if err != nil {
		return err
	}

	tester := NewTester(engine, manager, zalgo.NewStyler(newRand(3)), zalgo.ParseIntensity(cfg.Persona.ReplyIntensity), userID, os.Stdout)
	return tester.Run(cmd.Context(), os.Stdin)
}

// newRand derives a seeded source per component, or nil when no seed is set.
func newRand(offset int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewSource(seed + offset))
}

func contextRand(r *rand.Rand) []conversation.ContextOption {
	if r == nil {
		return nil
	}
	return []conversation.ContextOption{conversation.WithRand(r)}
}
