package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/PageInsights/internal/database"
)

var (
	runsMode  string
	runsLimit int
	rateNote  string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse and rate stored insight runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent insight runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(runsMode, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No insight runs yet. Generate one with: pageinsights insights FILE")
			return nil
		}

		for _, r := range runs {
			status := styleOK.Render(r.Status)
			if r.Status == database.StatusFailed {
				status = styleError.Render(r.Status)
			}
			rating := ""
			if r.Rating != nil {
				rating = " [" + *r.Rating + "]"
			}
			fmt.Printf("  %s  %-16s %-7s %s%s\n", r.ID, r.Mode, status, strings.Join(r.Labels, ", "), rating)
			if r.CreatedAt != nil {
				fmt.Printf("        %s\n", styleMuted.Render(*r.CreatedAt))
			}
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a stored insight run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", args[0])
		}

		fmt.Println(styleHeading.Render(fmt.Sprintf("%s (%s)", run.Mode, strings.Join(run.Labels, ", "))))
		model := ""
		if run.Model != nil {
			model = " / " + *run.Model
		}
		fmt.Println(styleMuted.Render(fmt.Sprintf("%s%s, %d ms", run.Provider, model, run.DurationMS)))
		fmt.Println()
		switch {
		case run.Status == database.StatusFailed:
			if run.Error != nil {
				fmt.Println(styleError.Render(*run.Error))
			}
			if run.RawOutput != nil && *run.RawOutput != "" {
				fmt.Println(styleBox.Render(*run.RawOutput))
			}
		case run.Markdown != nil:
			fmt.Println(*run.Markdown)
		}
		if run.Rating != nil {
			fmt.Printf("\nRated: %s\n", *run.Rating)
		}
		return nil
	},
}

var runsRateCmd = &cobra.Command{
	Use:   "rate [id] [useful|not_useful]",
	Short: "Rate a stored insight run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		rating := strings.ReplaceAll(strings.ToLower(args[1]), "-", "_")
		if err := db.RateRun(args[0], rating, rateNote); err != nil {
			if errors.Is(err, database.ErrRunNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			return err
		}
		fmt.Printf("Rated run %s: %s\n", args[0], rating)
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a stored insight run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteRun(args[0]); err != nil {
			if errors.Is(err, database.ErrRunNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			return err
		}
		fmt.Printf("Deleted run %s\n", args[0])
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsMode, "mode", "", "Only list runs of this mode")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
	runsRateCmd.Flags().StringVar(&rateNote, "note", "", "Optional note")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsRateCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

func requireHistory() (*database.DB, error) {
	db, err := openHistory()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("run history is disabled; set history.enabled in the config")
	}
	return db, nil
}
