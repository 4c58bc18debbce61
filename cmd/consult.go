package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oslerlabs/simcore/internal/app"
	"github.com/oslerlabs/simcore/internal/encounter"
	"github.com/oslerlabs/simcore/internal/patient"
)

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Run an interactive patient encounter",
	Long: `Start an encounter against a seeded case and talk to the virtual
patient from the terminal. Type /end (or ask for the diagnosis) to finish
and receive the evaluation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetString("case")
		userFlag, _ := cmd.Flags().GetString("user")
		retake, _ := cmd.Flags().GetBool("retake")
		previous, _ := cmd.Flags().GetString("previous")
		reason, _ := cmd.Flags().GetString("reason")
		focus, _ := cmd.Flags().GetStringSlice("focus")
		mock, _ := cmd.Flags().GetBool("mock")

		cfg, log, err := loadConfig()
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

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, app.Options{DBPath: dbPath, MockProvider: mock}, log)
		if err != nil {
			return err
		}
		defer a.Close()

		var started *encounter.StartResult
		if retake {
			started, err = a.Engine.StartRetake(ctx, encounter.StartRetakeParams{
				CaseID:            caseID,
				UserID:            userID,
				PreviousSessionID: previous,
				Reason:            reason,
				FocusAreas:        focus,
			})
		} else {
			started, err = a.Engine.Start(ctx, caseID, userID)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Session %s (attempt %d)\n", started.SessionID, started.AttemptNumber)
		if started.SpeaksFor != "" {
			fmt.Printf("%s, speaking for %s:\n", started.PatientName, started.SpeaksFor)
		} else {
			fmt.Printf("%s:\n", started.PatientName)
		}
		if started.InitialPrompt != "" {
			fmt.Printf("  %s\n", started.InitialPrompt)
		}
		fmt.Println()

		return consultLoop(cmd, a, started.SessionID, userID)
	},
}

// consultLoop reads clinician turns from stdin until /end or EOF, then
// terminates the session and prints the evaluation.
func consultLoop(cmd *cobra.Command, a *app.App, sessionID, userID string) error {
	ctx := cmd.Context()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	sink := patient.SinkFunc(func(ev patient.Event) error {
		switch ev.Kind {
		case patient.EventChunk:
			fmt.Print(ev.Content)
		case patient.EventError:
			fmt.Printf("\n[%s]\n", ev.Content)
		case patient.EventDone:
			if ev.SessionShouldEnd {
				fmt.Println("\n\n(The encounter is concluding. Type /end to receive your evaluation.)")
			}
		}
		return nil
	})

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "/end" {
			break
		}

		res, err := a.Engine.Ask(ctx, sessionID, question, sink)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if res.ActionResult != nil {
			fmt.Println(string(res.ActionResult))
		}
		fmt.Println()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	end, err := a.Engine.End(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(strings.Repeat("\u2500", 60))
	fmt.Println("EVALUATION")
	fmt.Println(strings.Repeat("\u2500", 60))
	fmt.Println(end.Evaluation)
	return nil
}

func init() {
	consultCmd.Flags().StringP("case", "c", "", "Case ID to run (required)")
	consultCmd.Flags().StringP("user", "u", "", "User ID (overrides SIMCORE_USER_ID)")
	consultCmd.Flags().Bool("retake", false, "Start as a retake of a previous attempt")
	consultCmd.Flags().String("previous", "", "Previous session ID to link the retake to")
	consultCmd.Flags().String("reason", "", "Why this case is being retaken")
	consultCmd.Flags().StringSlice("focus", nil, "Focus areas for the retake")
	consultCmd.Flags().Bool("mock", false, "Use the mock LLM provider")
	_ = consultCmd.MarkFlagRequired("case")
}
