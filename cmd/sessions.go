package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oslerlabs/simcore/internal/encounter"
	"github.com/oslerlabs/simcore/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect session history",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list <case-id>",
	Short: "List all attempts at a case, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userFlag, _ := cmd.Flags().GetString("user")

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		userID := cfg.UserID
		if userFlag != "" {
			userID = userFlag
		}

		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}
		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		ctx := cmd.Context()
		lineage, err := s.ListLineage(ctx, userID, args[0])
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(lineage) == 0 {
			fmt.Println("No sessions for this case.")
			return nil
		}

		fmt.Printf("%-7s  %-36s  %-8s  %-7s  %-9s  %s\n",
			"Attempt", "Session", "Status", "Retake", "Score", "Label")
		fmt.Println(strings.Repeat("─", 90))
		for _, ses := range lineage {
			score, label := "-", "-"
			if rec, err := s.GetPerformanceRecord(ctx, ses.ID); err == nil {
				if rec.OverallScore != nil {
					score = fmt.Sprintf("%d", *rec.OverallScore)
				}
				label = rec.Label
			}
			retake := ""
			if ses.IsRetake {
				retake = "yes"
			}
			fmt.Printf("%-7d  %-36s  %-8s  %-7s  %-9s  %s\n",
				ses.AttemptNumber, ses.ID, ses.Status, retake, score, label)
		}
		return nil
	},
}

var sessionsCompareCmd = &cobra.Command{
	Use:   "compare <current-session-id> <previous-session-id>",
	Short: "Compare two evaluated attempts criterion by criterion",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, err := loadConfig()
		if err != nil {
			return err
		}

		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}
		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		// Comparison never generates, so no provider is wired.
		engine := encounter.NewEngine(s, nil, nil, nil, nil,
			encounter.DefaultConfig(), log, nil)

		imp, err := engine.CompareImprovement(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		if imp.Score != nil {
			fmt.Printf("Improvement score: %+d\n", *imp.Score)
		} else {
			fmt.Println("Improvement score: not available")
		}
		if len(imp.AreasImproved) > 0 {
			fmt.Println("Improved:")
			for _, a := range imp.AreasImproved {
				fmt.Printf("  + %s\n", a)
			}
		}
		if len(imp.AreasNeedingWork) > 0 {
			fmt.Println("Needs work:")
			for _, a := range imp.AreasNeedingWork {
				fmt.Printf("  - %s\n", a)
			}
		}
		if len(imp.AreasImproved) == 0 && len(imp.AreasNeedingWork) == 0 {
			fmt.Println("No criterion changed between the two attempts.")
		}
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().StringP("user", "u", "", "User ID (overrides SIMCORE_USER_ID)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCompareCmd)
}
