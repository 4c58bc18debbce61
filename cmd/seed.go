package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oslerlabs/simcore/internal/simcase"
	"github.com/oslerlabs/simcore/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load case definitions from a JSON file",
	Long:  "Read a JSON array of case definitions and upsert them into the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read case file: %w", err)
		}

		var cases []simcase.Case
		if err := json.Unmarshal(raw, &cases); err != nil {
			return fmt.Errorf("parse case file: %w", err)
		}
		if len(cases) == 0 {
			return fmt.Errorf("case file %s contains no cases", file)
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

		if err := seedCases(cmd.Context(), s, cases); err != nil {
			return err
		}
		fmt.Printf("%d case(s) seeded.\n", len(cases))
		return nil
	},
}

// seedCases upserts the given definitions, defaulting the specialty.
func seedCases(ctx context.Context, st simcase.Store, cases []simcase.Case) error {
	for i := range cases {
		c := &cases[i]
		if c.ID == "" {
			return fmt.Errorf("case %d (%q) has no id", i, c.Title)
		}
		if c.Specialty == "" {
			c.Specialty = simcase.SpecialtyGeneral
		}
		if err := st.PutCase(ctx, c); err != nil {
			return fmt.Errorf("seed case %s: %w", c.ID, err)
		}
		fmt.Printf("seeded %s (%s)\n", c.ID, c.Title)
	}
	return nil
}

func init() {
	seedCmd.Flags().StringP("file", "f", "", "Path to a JSON file with an array of cases (required)")
	_ = seedCmd.MarkFlagRequired("file")
}
