package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/waveplan/internal/atomicity"
	"github.com/aristath/waveplan/internal/engine"
	"github.com/aristath/waveplan/internal/graph"
	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/task"
)

var (
	createTitle    string
	createDesc     string
	createCategory string
	createRisk     string
	createEffort   string
	createDeadline string
	createAccept   []string
	createImpacts  []string
	createDeps     []string
	createBlocks   []string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task with its impacts and relationships",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, cleanup, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		spec := engine.CreateSpec{
			Title:       createTitle,
			Description: createDesc,
			Category:    createCategory,
			Risk:        task.Risk(createRisk),
			Effort:      task.Effort(createEffort),
			Acceptance:  createAccept,
		}
		if createDeadline != "" {
			d, err := time.Parse(time.RFC3339, createDeadline)
			if err != nil {
				return fmt.Errorf("parsing deadline: %w", err)
			}
			spec.Deadline = &d
		}
		for _, raw := range createImpacts {
			im, err := parseImpact(raw)
			if err != nil {
				return err
			}
			spec.Impacts = append(spec.Impacts, im)
		}
		for _, target := range createDeps {
			spec.Relationships = append(spec.Relationships, graph.Relationship{
				Target: target, Type: graph.RelDependsOn,
			})
		}
		for _, target := range createBlocks {
			spec.Relationships = append(spec.Relationships, graph.Relationship{
				Target: target, Type: graph.RelBlocks,
			})
		}

		t, res, err := eng.CreateTask(cmd.Context(), spec)
		if err != nil {
			return err
		}
		fmt.Printf("created %s (%s)\n", t.ID, t.Status)
		printValidation(res)
		if !res.OK {
			return &engine.AtomicityError{TaskID: t.ID, Result: *res}
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, cleanup, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		tasks, err := eng.Store().ListTasks(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tEFFORT\tRISK\tTITLE")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Effort, t.Risk, t.Title)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its impacts and relationships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, cleanup, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		t, err := eng.Store().GetTask(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  v%d  %s\n", t.ID, t.Version, t.Status)
		fmt.Printf("  title:    %s\n", t.Title)
		if t.Description != "" {
			fmt.Printf("  desc:     %s\n", t.Description)
		}
		fmt.Printf("  category: %s  effort: %s  risk: %s\n", t.Category, t.Effort, t.Risk)
		if t.Deadline != nil {
			fmt.Printf("  deadline: %s\n", t.Deadline.Format(time.RFC3339))
		}
		if t.Supersedes != "" {
			fmt.Printf("  supersedes: %s\n", t.Supersedes)
		}
		for _, c := range t.Acceptance {
			fmt.Printf("  accept:   %s\n", c)
		}

		impacts, err := eng.Store().ListImpacts(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, im := range impacts {
			fmt.Printf("  impact:   %s %s\n", im.Op, im.Target())
		}

		rels, err := eng.Store().RelationshipsFor(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			fmt.Printf("  rel:      %s\n", rel)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show the lifecycle audit trail for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, cleanup, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		recs, err := eng.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tFROM\tTO\tACTOR\tWHEN\tREASON")
		for _, r := range recs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				r.Seq, r.From, r.To, r.Actor, r.Timestamp.Format(time.RFC3339), r.Reason)
		}
		return w.Flush()
	},
}

var (
	transitionActor  string
	transitionReason string
)

var transitionCmd = &cobra.Command{
	Use:   "transition <task-id> <status>",
	Short: "Move a task to a new lifecycle state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, cleanup, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		to := task.Status(args[1])
		if !to.IsValid() {
			return fmt.Errorf("unknown status %q", args[1])
		}
		rec, err := eng.Tracker().Transition(cmd.Context(), args[0], to, transitionActor, transitionReason)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s -> %s\n", args[0], rec.From, rec.To)
		return nil
	},
}

var relateType string

var relateCmd = &cobra.Command{
	Use:   "relate <source-id> <target-id>",
	Short: "Add a relationship between two tasks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, cleanup, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		rel := graph.Relationship{
			Source: args[0],
			Target: args[1],
			Type:   graph.RelationshipType(relateType),
		}
		if err := eng.AddRelationship(cmd.Context(), rel); err != nil {
			return err
		}
		fmt.Printf("added %s\n", rel)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createTitle, "title", "", "Task title (required)")
	createCmd.Flags().StringVar(&createDesc, "desc", "", "Task description")
	createCmd.Flags().StringVar(&createCategory, "category", "", "Task category (feature, bugfix, security, ...)")
	createCmd.Flags().StringVar(&createRisk, "risk", string(task.RiskMedium), "Risk level: low, medium, high")
	createCmd.Flags().StringVar(&createEffort, "effort", string(task.EffortSmall), "Effort: trivial, small, medium, large, too_large")
	createCmd.Flags().StringVar(&createDeadline, "deadline", "", "Deadline (RFC 3339)")
	createCmd.Flags().StringArrayVar(&createAccept, "accept", nil, "Acceptance criterion (repeatable)")
	createCmd.Flags().StringArrayVar(&createImpacts, "impact", nil, "Impact as kind:OP:path[#name] (repeatable)")
	createCmd.Flags().StringArrayVar(&createDeps, "depends-on", nil, "Task ID this task depends on (repeatable)")
	createCmd.Flags().StringArrayVar(&createBlocks, "blocks", nil, "Task ID this task blocks (repeatable)")
	createCmd.MarkFlagRequired("title")

	transitionCmd.Flags().StringVar(&transitionActor, "actor", "cli", "Actor recorded in the audit trail")
	transitionCmd.Flags().StringVar(&transitionReason, "reason", "", "Reason recorded in the audit trail")

	relateCmd.Flags().StringVar(&relateType, "type", string(graph.RelDependsOn), "Relationship type")
}

// parseImpact parses the CLI impact syntax kind:OP:path[#name], for example
// file:UPDATE:internal/auth/session.go#Refresh.
func parseImpact(raw string) (impact.Impact, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return impact.Impact{}, fmt.Errorf("malformed impact %q: want kind:OP:path[#name]", raw)
	}
	kind := impact.Kind(parts[0])
	switch kind {
	case impact.KindFile, impact.KindEndpoint, impact.KindFunction, impact.KindTable, impact.KindType:
	default:
		return impact.Impact{}, fmt.Errorf("unknown impact kind %q", parts[0])
	}
	op := impact.Op(strings.ToUpper(parts[1]))
	switch op {
	case impact.OpCreate, impact.OpRead, impact.OpUpdate, impact.OpDelete:
	default:
		return impact.Impact{}, fmt.Errorf("unknown impact op %q", parts[1])
	}
	path, name := parts[2], ""
	if i := strings.LastIndex(parts[2], "#"); i >= 0 {
		path, name = parts[2][:i], parts[2][i+1:]
	}
	return impact.Impact{
		Kind:       kind,
		Op:         op,
		Path:       path,
		Name:       name,
		Confidence: 1,
		Provenance: impact.ProvenanceDeclared,
	}, nil
}

func printValidation(res *atomicity.Result) {
	for _, v := range res.Violations {
		fmt.Printf("  %s [%s]: %s\n", v.Severity, v.Rule, v.Message)
	}
	for _, g := range res.Decomposition {
		fmt.Printf("  suggest %s: %s\n", g.Name, strings.Join(g.Targets, ", "))
	}
}
