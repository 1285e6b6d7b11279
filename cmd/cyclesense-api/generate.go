package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JonnyWalker81/cyclesense/backend/internal/config"
	"github.com/JonnyWalker81/cyclesense/backend/internal/logger"
	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate insights for one user",
	Long:  `Run the insight pipeline for a single user against the configured backends and print the active insights.`,
	RunE:  runGenerate,
}

var (
	generateUser     string
	generateForce    bool
	generateMax      int
	generateStrategy string
	generateExpired  bool
)

func init() {
	generateCmd.Flags().StringVarP(&generateUser, "user", "u", "", "User ID to generate insights for (required)")
	generateCmd.Flags().BoolVar(&generateForce, "force", false, "Ignore stored insights when merging")
	generateCmd.Flags().IntVar(&generateMax, "max", 0, "Maximum insights to request (0 uses the configured default)")
	generateCmd.Flags().StringVar(&generateStrategy, "strategy", "", "Preferred strategy: ai, enhanced or rule_based")
	generateCmd.Flags().BoolVar(&generateExpired, "include-expired", false, "Keep expired candidates when merging")
	_ = generateCmd.MarkFlagRequired("user")
}

// generateOptions builds the pipeline options from the command flags
func generateOptions() (models.GenerateOptions, error) {
	strategy := models.Strategy(generateStrategy)
	if strategy != "" && !strategy.Valid() {
		return models.GenerateOptions{}, fmt.Errorf("unknown strategy %q", generateStrategy)
	}
	return models.GenerateOptions{
		MaxInsights:    generateMax,
		ForceRefresh:   generateForce,
		IncludeExpired: generateExpired,
		Strategy:       strategy,
	}, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	opts, err := generateOptions()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr := a.registry.ForUser(generateUser)
	result, err := mgr.Generate(ctx, opts)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	insights, err := mgr.GetActiveInsights(ctx)
	if err != nil {
		return fmt.Errorf("failed to read insights: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n", cyan("=== Insights for "+generateUser+" ==="))
	fmt.Printf("Strategy:   %s\n", result.Strategy)
	fmt.Printf("Candidates: %d (added %s, stored %d)\n", result.Candidates, green(result.Added), result.Total)
	fmt.Println()

	if len(insights) == 0 {
		fmt.Printf("  %s\n", gray("No active insights"))
		return nil
	}
	for _, in := range insights {
		fmt.Printf("  %s %s\n", priorityColor(in.Priority)("●"), in.Title)
		fmt.Printf("    %s\n", in.Content)
		meta := fmt.Sprintf("%s · %s · %s · confidence %.2f", in.Type, in.Category, in.Source, in.Confidence)
		if len(in.Tags) > 0 {
			meta += " · " + strings.Join(in.Tags, ", ")
		}
		fmt.Printf("    %s\n\n", gray(meta))
	}
	return nil
}

func priorityColor(p models.Priority) func(a ...interface{}) string {
	switch p {
	case models.PriorityUrgent:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case models.PriorityHigh:
		return color.New(color.FgYellow).SprintFunc()
	case models.PriorityMedium:
		return color.New(color.FgCyan).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}
