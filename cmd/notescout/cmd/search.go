package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/notescout/notescout/internal/search"
	"github.com/notescout/notescout/internal/ui"
	"github.com/notescout/notescout/internal/vault"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit     int
	format    string // "text", "json"
	terms     []string
	startDate string
	endDate   string
	all       bool
	noColor   bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vault from the command line",
		Long: `Search the vault using the full retrieval pipeline.

Combines grep scanning, link-graph expansion, full-text ranking and
semantic reranking with reciprocal rank fusion.

Examples:
  notescout search "mushroom foraging"
  notescout search "project kickoff" --limit 5
  notescout search --from 2026-08-01 --to 2026-08-30 "standup"
  notescout search "reading list" --format json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if query == "" && opts.startDate == "" && opts.endDate == "" {
				return fmt.Errorf("provide a query or a time range")
			}
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 uses config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringSliceVarP(&opts.terms, "term", "t", nil, "Extra salient term (repeatable)")
	cmd.Flags().StringVar(&opts.startDate, "from", "", "Start date (2006-01-02) for time-range retrieval")
	cmd.Flags().StringVar(&opts.endDate, "to", "", "End date (2006-01-02) for time-range retrieval")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Return every note in the time range")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(cfg, false)
	if err == nil {
		defer cleanup()
	}
	slog.Info("search_cli_started", slog.String("query", query), slog.Int("limit", opts.limit))

	store, err := buildVault(ctx, cfg, vaultDir)
	if err != nil {
		return err
	}
	manager := openManager(cfg, vaultDir)
	pipeline, _, err := buildPipeline(ctx, cfg, store, manager)
	if err != nil {
		return err
	}

	req := search.Request{
		Query:        query,
		SalientTerms: opts.terms,
		ReturnAll:    opts.all,
	}
	req.TimeRange, err = timeRangeFromFlags(opts.startDate, opts.endDate)
	if err != nil {
		return err
	}

	searchOpts := searchOptionsFromConfig(cfg)
	if opts.limit > 0 {
		searchOpts.MaxResults = opts.limit
	}

	results, err := pipeline.Search(ctx, req, searchOpts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_cli_complete", slog.Int("results", len(results)))

	switch opts.format {
	case "json":
		return formatJSON(cmd, results)
	default:
		return formatText(cmd, query, results, opts.noColor)
	}
}

// timeRangeFromFlags parses --from/--to into a time range. A bare end
// date extends to the end of that day.
func timeRangeFromFlags(from, to string) (*vault.TimeRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	r := &vault.TimeRange{End: time.Now()}
	var err error
	if from != "" {
		r.Start, err = time.Parse("2006-01-02", from)
		if err != nil {
			return nil, fmt.Errorf("invalid --from date: %w", err)
		}
	}
	if to != "" {
		end, err := time.Parse("2006-01-02", to)
		if err != nil {
			return nil, fmt.Errorf("invalid --to date: %w", err)
		}
		r.End = end.Add(24*time.Hour - time.Nanosecond)
	}
	return r, nil
}

// formatText renders results for a terminal.
func formatText(cmd *cobra.Command, query string, results []search.RetrievedNote, noColor bool) error {
	styles := ui.DefaultStyles()
	if noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()) {
		styles = ui.NoColorStyles()
	}
	out := cmd.OutOrStdout()

	if len(results) == 0 {
		fmt.Fprintln(out, styles.Dim.Render(fmt.Sprintf("No results for %q", query)))
		return nil
	}

	fmt.Fprintln(out, styles.Header.Render(fmt.Sprintf("%d results for %q", len(results), query)))
	fmt.Fprintln(out)

	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.Path
		}
		line := fmt.Sprintf("%2d. %s", i+1, styles.Title.Render(title))
		if r.IncludeInContext {
			line += " " + styles.Success.Render("[pinned]")
		}
		fmt.Fprintln(out, line)
		fmt.Fprintf(out, "    %s  %s\n",
			styles.Path.Render(r.Path),
			styles.Score.Render(fmt.Sprintf("score %.3f", r.Score)))
		for _, snippet := range snippetLines(r.Content, 2) {
			fmt.Fprintf(out, "    %s\n", styles.Dim.Render(snippet))
		}
		fmt.Fprintln(out)
	}
	return nil
}

// formatJSON renders results as a JSON array.
func formatJSON(cmd *cobra.Command, results []search.RetrievedNote) error {
	type jsonResult struct {
		Title      string    `json:"title"`
		Path       string    `json:"path"`
		Score      float64   `json:"score"`
		Source     string    `json:"source,omitempty"`
		ModifiedAt time.Time `json:"modified_at"`
		Pinned     bool      `json:"pinned,omitempty"`
		Content    string    `json:"content"`
	}

	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			Title:      r.Title,
			Path:       r.Path,
			Score:      r.Score,
			Source:     r.Source,
			ModifiedAt: r.MTime,
			Pinned:     r.IncludeInContext,
			Content:    r.Content,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// snippetLines returns the first n non-empty lines of content.
func snippetLines(content string, n int) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, trimmed)
		if len(lines) == n {
			break
		}
	}
	return lines
}
