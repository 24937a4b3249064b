package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/PageInsights/internal/export"
	"github.com/TobiSchelling/PageInsights/internal/insights"
	"github.com/TobiSchelling/PageInsights/internal/llm"
	"github.com/TobiSchelling/PageInsights/internal/pipeline"
	"github.com/TobiSchelling/PageInsights/internal/report"
)

var (
	labels     []string
	jsonOutput bool
	author     string
)

// --- analyze command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Print writer, section, referrer and daily statistics for each export",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := readInputs(args, labels)
		if err != nil {
			return err
		}
		pipe := newPipeline(nil, nil)
		a, err := pipe.Analyze(inputs)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(a)
		}

		for i, s := range a.Summaries {
			if author != "" {
				opts := reportOptions()
				opts.FocusAuthor = author
				s = report.Build(a.Datasets[i], opts)
				if s.Focus == nil {
					fmt.Println(styleError.Render(fmt.Sprintf("Writer %q not found in %s", author, a.Labels()[i])))
				}
			}
			fmt.Println(styleHeading.Render(a.Labels()[i]))
			fmt.Println(report.Render(s))
		}
		if a.Periods != nil {
			fmt.Println(report.RenderPeriods(a.Periods))
		}
		return nil
	},
}

// --- compare command ---

var compareCmd = &cobra.Command{
	Use:   "compare FILE FILE...",
	Short: "Compare periods; with exactly two files also compare all traffic against traffic excluding a source",
	Long: "Compare two or more exports as periods, sorted by publish date. With exactly two files the second " +
		"is also read as the same period with one traffic source excluded.",
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := readInputs(args, labels)
		if err != nil {
			return err
		}
		a, err := newPipeline(nil, nil).Analyze(inputs)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"periods": a.Periods, "sources": a.Sources})
		}

		fmt.Println(report.RenderPeriods(a.Periods))
		if a.Sources != nil {
			fmt.Println(report.RenderSources(a.Sources))
		}
		return nil
	},
}

// --- insights command ---

var (
	modeNames      []string
	allModes       bool
	providerName   string
	modelName      string
	dryRunInsights bool
)

var insightsCmd = &cobra.Command{
	Use:   "insights FILE...",
	Short: "Generate editorial narratives from one or more exports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := readInputs(args, labels)
		if err != nil {
			return err
		}

		var modes []insights.Mode
		if allModes {
			modes = insights.Applicable(len(inputs), author)
		} else {
			for _, name := range modeNames {
				m, err := insights.ParseMode(name)
				if err != nil {
					return err
				}
				modes = append(modes, m)
			}
		}
		if len(modes) == 0 {
			return errors.New("no insight mode selected; use --mode or --all")
		}

		var kind llm.Kind
		if providerName != "" {
			if kind, err = llm.ParseKind(providerName); err != nil {
				return err
			}
		}

		db, err := openHistory()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		res, runErr := newPipeline(db, nil).Run(cmd.Context(), pipeline.Request{
			Inputs:   inputs,
			Modes:    modes,
			Author:   author,
			Provider: kind,
			Model:    modelName,
			DryRun:   dryRunInsights,
		})

		if jsonOutput {
			if err := printJSON(res); err != nil {
				return err
			}
			return runErr
		}

		for i, step := range res.Steps {
			fmt.Printf("Step %d/%d: %s\n", i+1, len(res.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  %s\n", styleError.Render("Error: "+step.Err.Error()))
			} else {
				fmt.Printf("  %s\n", styleMuted.Render(step.Summary))
			}
		}
		for _, ir := range res.Insights {
			fmt.Println()
			fmt.Println(styleHeading.Render(ir.Mode.Title()))
			switch {
			case ir.Err != nil:
				stage, _ := pipeline.StageOf(ir.Err)
				fmt.Println(styleError.Render(fmt.Sprintf("[%s] %v", stage, ir.Err)))
			case ir.Prompt != "":
				fmt.Println(styleBox.Render(ir.Prompt))
			case ir.Insight != nil:
				fmt.Println(ir.Insight.Markdown())
				if ir.RunID != "" {
					fmt.Println(styleMuted.Render("Run " + ir.RunID))
				}
			}
		}
		return runErr
	},
}

// --- export command ---

var exportPath string

var exportCmd = &cobra.Command{
	Use:   "export FILE...",
	Short: "Write rankings and rollups to an XLSX workbook",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := readInputs(args, labels)
		if err != nil {
			return err
		}
		a, err := newPipeline(nil, nil).Analyze(inputs)
		if err != nil {
			return err
		}
		if err := export.WriteFile(exportPath, a.Summaries, a.Periods); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", exportPath)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{analyzeCmd, compareCmd, insightsCmd, exportCmd} {
		c.Flags().StringSliceVarP(&labels, "label", "l", nil, "Dataset labels, one per file (default: file names)")
	}
	for _, c := range []*cobra.Command{analyzeCmd, compareCmd, insightsCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")
	}
	analyzeCmd.Flags().StringVar(&author, "author", "", "Also report on this writer")

	insightsCmd.Flags().StringSliceVarP(&modeNames, "mode", "m", []string{string(insights.ModeTakeaways)},
		"Insight modes: takeaways, recommendations, writer-feedback, comparison, sources, meeting-summary")
	insightsCmd.Flags().BoolVar(&allModes, "all", false, "Generate every mode that applies to the given files")
	insightsCmd.Flags().StringVar(&author, "author", "", "Writer for writer-feedback")
	insightsCmd.Flags().StringVar(&providerName, "provider", "", "Override the configured provider (ollama, openai, anthropic)")
	insightsCmd.Flags().StringVar(&modelName, "model", "", "Try this model first")
	insightsCmd.Flags().BoolVar(&dryRunInsights, "dry-run", false, "Print the prompts without calling the provider")

	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "pageinsights.xlsx", "Workbook path")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
