package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oslerlabs/simcore/internal/store"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List seeded cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}

		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		cases, err := s.ListCases(cmd.Context())
		if err != nil {
			return fmt.Errorf("list cases: %w", err)
		}

		if len(cases) == 0 {
			fmt.Println("No cases seeded. Use `simcore seed --file cases.json`.")
			return nil
		}

		fmt.Printf("%-28s  %-12s  %s\n", "ID", "Specialty", "Title")
		fmt.Println(strings.Repeat("─", 80))
		for _, c := range cases {
			fmt.Printf("%-28s  %-12s  %s\n", c.ID, c.Specialty, c.Title)
		}
		return nil
	},
}
