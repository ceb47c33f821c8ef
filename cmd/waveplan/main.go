package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/waveplan/internal/config"
	"github.com/aristath/waveplan/internal/engine"
	"github.com/aristath/waveplan/internal/events"
	"github.com/aristath/waveplan/internal/graph"
	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/lifecycle"
	"github.com/aristath/waveplan/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "waveplan",
	Short: "Task graph and wave scheduling engine",
	Long: `waveplan models relationships between units of work, detects CRUD
conflicts on shared resources, and partitions eligible tasks into waves
that are safe to execute concurrently.`,
}

var dbPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ".waveplan/waveplan.db", "Path to the task database")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(transitionCmd)
	rootCmd.AddCommand(relateCmd)
}

func main() {
	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// openEngine opens the store and wires an engine for one CLI invocation.
func openEngine(ctx context.Context) (*engine.Engine, *events.Bus, func(), error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewStore(ctx, dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	bus := events.NewBus()
	eng := engine.New(s, bus, cfg)

	cleanup := func() {
		bus.Close()
		s.Close()
	}
	return eng, bus, cleanup, nil
}

// exitCode maps the engine's error taxonomy onto process exit codes so
// scripted callers can branch on the failure kind.
func exitCode(err error) int {
	var dup *impact.ErrDuplicateImpact
	if errors.As(err, &dup) {
		return 2
	}
	var atom *engine.AtomicityError
	if errors.As(err, &atom) {
		return 3
	}
	var cycle *graph.CycleError
	if errors.As(err, &cycle) {
		return 4
	}
	if errors.Is(err, store.ErrVersionConflict) {
		return 5
	}
	var invalid *lifecycle.InvalidTransitionError
	if errors.As(err, &invalid) {
		return 6
	}
	if errors.Is(err, store.ErrUnknownTask) || errors.Is(err, store.ErrUnknownRelationshipTarget) {
		return 7
	}
	return 1
}
