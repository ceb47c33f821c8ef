package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Partition eligible tasks into concurrency-safe waves",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, cleanup, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := eng.PlanWaves(cmd.Context())
		if err != nil {
			return err
		}
		if len(res.Waves) == 0 {
			fmt.Println("no eligible tasks")
			return nil
		}
		fmt.Printf("plan @ graph version %d (%s)\n", res.GraphVersion, res.ComputedAt.Format("2006-01-02 15:04:05"))
		for _, w := range res.Waves {
			fmt.Printf("  wave %d: %s\n", w.Number, strings.Join(w.TaskIDs, ", "))
		}
		return nil
	},
}
