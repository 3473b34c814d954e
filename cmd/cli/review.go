package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mergemate/mergemate/internal/collector"
	"github.com/mergemate/mergemate/internal/core"
	"github.com/mergemate/mergemate/internal/gitutil"
	"github.com/mergemate/mergemate/internal/llm"
	"github.com/mergemate/mergemate/internal/payload"
)

var verbose bool

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgWhite)
	dimColor     = color.New(color.FgHiBlack)
	boldColor    = color.New(color.Bold)
)

var reviewCmd = &cobra.Command{
	Use:   "review [patch-file]",
	Short: "Run a one-shot AI review of a local patch or source file",
	Long: `Run a one-shot AI review of a local patch or source file.

The review command reads the file, assembles the same review payload the
service builds for a Slack upload, sends it to the configured AI provider,
and prints the structured result to the terminal. Nothing is posted to
Slack and nothing is persisted.

Examples:
  mergemate-cli review change.patch
  mergemate-cli review --verbose internal/server/handler.go`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output with timing information")
	rootCmd.AddCommand(reviewCmd)
}

// stepTimer tracks timing for verbose output
type stepTimer struct {
	stepNum    int
	totalSteps int
	start      time.Time
	verbose    bool
}

func newStepTimer(totalSteps int, verbose bool) *stepTimer {
	return &stepTimer{
		stepNum:    0,
		totalSteps: totalSteps,
		verbose:    verbose,
	}
}

func (t *stepTimer) step(name string) {
	t.stepNum++
	t.start = time.Now()
	if t.verbose {
		titleColor.Printf("\nStep %d/%d: %s...\n", t.stepNum, t.totalSteps, name)
	} else {
		fmt.Printf("%s...\n", name)
	}
}

func (t *stepTimer) done(details ...string) {
	if t.verbose {
		elapsed := time.Since(t.start).Round(time.Millisecond)
		successColor.Printf("   done (%s)\n", elapsed)
		for _, d := range details {
			dimColor.Printf("   %s\n", d)
		}
	}
}

func (t *stepTimer) info(format string, args ...any) {
	if t.verbose {
		dimColor.Printf("   "+format+"\n", args...)
	}
}

func runReview(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	timer := newStepTimer(4, verbose)
	overallStart := time.Now()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	titleColor.Println("MergeMate - one-shot review")
	dimColor.Printf("   Target: %s\n\n", path)

	// 1. Read the file
	timer.step("Reading file")
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	event := &core.TriggerEvent{
		Source:      core.SourceSlackUpload,
		RequestKey:  core.RequestKeyForUpload(content),
		SlackUser:   "cli",
		Target:      core.SlackTarget{ChannelID: "cli"},
		FileName:    filepath.Base(path),
		FileContent: content,
	}
	timer.info("Request key: %s", event.RequestKey)
	timer.info("Size: %d bytes", len(content))
	timer.done()

	// 2. Collect context
	timer.step("Collecting context")
	col, err := collector.New(collector.Config{}, gitutil.NewClient(logger), nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}
	req, _, err := col.Collect(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to collect review context: %w", err)
	}
	timer.info("Files: %d", len(req.ChangedFiles))
	timer.done()

	// 3. Build payload
	timer.step("Building payload")
	templates, err := payload.NewTemplateSet()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	builder := payload.NewBuilder(templates, viper.GetString("AI_PROVIDER"), viper.GetInt("AI_TOKEN_BUDGET"), logger)
	reviewPayload, err := builder.Build(req, payload.TemplateForSource(req.Source))
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}
	if reviewPayload.Truncated {
		timer.info("Payload truncated to fit the token budget")
	}
	timer.done()

	// 4. Generate review
	timer.step("Generating review")
	model, err := createModel(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI model: %w\n\nTip: check AI_PROVIDER, OLLAMA_HOST or GEMINI_API_KEY", err)
	}
	reviewer := llm.NewModelReviewer(model, viper.GetDuration("AI_CALL_TIMEOUT"), logger)
	result, err := reviewer.Review(ctx, reviewPayload)
	if err != nil {
		return fmt.Errorf("failed to generate review: %w\n\nTip: check that the AI provider is reachable", err)
	}
	timer.info("Suggestions: %d", len(result.Suggestions))
	timer.done()

	if verbose {
		dimColor.Printf("\nTotal time: %s\n", time.Since(overallStart).Round(time.Millisecond))
	}

	printReview(result)
	return nil
}

// createModel builds the provider client from the same environment variables
// the server reads.
func createModel(ctx context.Context, logger *slog.Logger) (llms.Model, error) {
	switch provider := viper.GetString("AI_PROVIDER"); provider {
	case "gemini":
		apiKey := viper.GetString("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return gemini.New(ctx,
			gemini.WithModel(viper.GetString("AI_MODEL_NAME")),
			gemini.WithAPIKey(apiKey),
		)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(viper.GetString("OLLAMA_HOST")),
			ollama.WithModel(viper.GetString("AI_MODEL_NAME")),
			ollama.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", provider)
	}
}

func printReview(result *core.ReviewResult) {
	separator := strings.Repeat("=", 60)
	thinSeparator := strings.Repeat("-", 60)

	fmt.Println()
	titleColor.Println(separator)
	titleColor.Println("REVIEW SUMMARY")
	titleColor.Println(separator)
	fmt.Println()
	infoColor.Println(result.Summary)

	if result.Recommended != core.ActionNone {
		fmt.Println()
		boldColor.Printf("Recommended action: %s\n", result.Recommended)
	}

	if len(result.Suggestions) == 0 {
		fmt.Println()
		successColor.Println("No issues found!")
		return
	}

	fmt.Println()
	warnColor.Println(thinSeparator)
	warnColor.Printf("SUGGESTIONS (%d)\n", len(result.Suggestions))
	warnColor.Println(thinSeparator)

	for i, s := range result.Suggestions {
		fmt.Println()
		printSeverityBadge(s.Severity)
		boldColor.Printf(" %s", s.FilePath)
		if s.StartLine > 0 {
			dimColor.Printf(":%d", s.StartLine)
		}
		fmt.Println()

		if s.Category != "" {
			dimColor.Printf("   Category: %s\n", s.Category)
		}
		fmt.Println()
		infoColor.Printf("%s\n", s.Comment)

		if i < len(result.Suggestions)-1 {
			fmt.Println()
			dimColor.Println(strings.Repeat("-", 40))
		}
	}
	fmt.Println()
}

func printSeverityBadge(severity string) {
	switch severity {
	case "Critical":
		color.New(color.BgRed, color.FgWhite, color.Bold).Printf(" %s ", severity)
	case "High":
		color.New(color.BgHiRed, color.FgWhite).Printf(" %s ", severity)
	case "Medium":
		color.New(color.BgYellow, color.FgBlack).Printf(" %s ", severity)
	case "Low":
		color.New(color.BgGreen, color.FgWhite).Printf(" %s ", severity)
	default:
		color.New(color.BgWhite, color.FgBlack).Printf(" %s ", severity)
	}
}
