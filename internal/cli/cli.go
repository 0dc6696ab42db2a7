package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/shuttle-schedule/internal/cache"
	"github.com/pfrederiksen/shuttle-schedule/internal/fetch"
	"github.com/pfrederiksen/shuttle-schedule/internal/filter"
	"github.com/pfrederiksen/shuttle-schedule/internal/logger"
	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
	"github.com/pfrederiksen/shuttle-schedule/internal/storage"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

// DefaultScrapeTimeout bounds the single direct fetch of the scrape job
const DefaultScrapeTimeout = 20 * time.Second

var (
	flagConfig  string
	flagDataDir string
	flagVerbose bool

	flagPrevious bool
	flagFrom     string
	flagTo       string
	flagRoute    string
	flagQuery    string
	flagBetween  string
	flagSort     string
	flagFormat   string

	flagOut     string
	flagTimeout time.Duration
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shuttle-schedule",
		Short: "Show the staff shuttle bus schedule",
		Long: `A CLI tool for the staff shuttle bus schedule.
Fetches the published timetable, keeps today's and the previous day's
schedule, and prints departures filtered by stop, bus or time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory for cached snapshots (overrides config)")
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(newShowCmd(), newRefreshCmd(), newScrapeCmd(), newStatusCmd())
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print today's departures",
		Long: `Print today's departures. A fresh bundled snapshot is used when present,
otherwise the schedule is fetched live, falling back to the cached copy.`,
		Args: cobra.NoArgs,
		RunE: runShow,
	}

	cmd.Flags().BoolVar(&flagPrevious, "previous", false, "Show the previous day's cached schedule")
	cmd.Flags().StringVar(&flagFrom, "from", "", "Only routes with a stop containing this text")
	cmd.Flags().StringVar(&flagTo, "to", "", "Only routes reaching a stop containing this text (after --from)")
	cmd.Flags().StringVar(&flagRoute, "route", "", "Shorthand for --from/--to, e.g. 'Гараж → Цех'")
	cmd.Flags().StringVar(&flagQuery, "query", "", "Search time, bus numbers, route and notes")
	cmd.Flags().StringVar(&flagBetween, "between", "", "Departure time window, e.g. '07:00-09:30' or '7-9'")
	cmd.Flags().StringVar(&flagSort, "sort", "time", "Sort order: time or bus")
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text, json or ics")

	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the schedule live and update the cache",
		Args:  cobra.NoArgs,
		RunE:  runRefresh,
	}
}

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch the upstream page directly and write the bundled snapshot",
		Long: `Fetch the upstream page directly (no relays), parse it and write the
bundled snapshot file that show prefers while it is fresh. Fails when
the page yields no departures.`,
		Args: cobra.NoArgs,
		RunE: runScrape,
	}

	cmd.Flags().StringVar(&flagOut, "out", "", "Bundle file to write (default: bundle.path from config)")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", DefaultScrapeTimeout, "Request timeout")

	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [current|previous]",
		Short: "Print the cached generations and their freshness",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}

	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text or json")
	return cmd
}

// buildFilter assembles the filter from command-line flags
func buildFilter() (*filter.Filter, error) {
	f := filter.NewFilter()
	f.From = flagFrom
	f.To = flagTo
	f.Query = flagQuery

	if flagRoute != "" {
		if flagFrom != "" || flagTo != "" {
			return nil, fmt.Errorf("--route cannot be combined with --from or --to")
		}
		from, to, err := filter.ParseRoute(flagRoute)
		if err != nil {
			return nil, fmt.Errorf("invalid --route: %w", err)
		}
		f.From, f.To = from, to
	}

	if flagBetween != "" {
		w, err := filter.ParseTimeWindow(flagBetween)
		if err != nil {
			return nil, fmt.Errorf("invalid --between: %w", err)
		}
		f.Window = w
	}

	return f, nil
}

// runShow is the main command logic
func runShow(cmd *cobra.Command, args []string) error {
	format, err := ParseFormat(flagFormat)
	if err != nil {
		return err
	}

	order := SortOrder(strings.ToLower(flagSort))
	if order != SortByTime && order != SortByBus {
		return fmt.Errorf("invalid sort: %s (must be 'time' or 'bus')", flagSort)
	}

	f, err := buildFilter()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	result := &OutputResult{Now: time.Now()}

	if flagPrevious {
		if _, err := a.manager.Bootstrap(ctx); err != nil {
			a.log.Warn("Failed to load part of the cache", nil, err)
		}
		snap := a.manager.SelectView(schedule.Previous)
		if snap == nil {
			return fmt.Errorf("no previous schedule cached")
		}
		result.Generation = schedule.Previous
		result.Source = cache.SourceCache
		result.ForDate = snap.ForDate
		result.CapturedAt = snap.CapturedAt
		result.Records = snap.Records
	} else {
		res, err := a.manager.MaterializeCurrent(ctx)
		if err != nil {
			return err
		}
		result.Generation = schedule.Current
		result.Source = res.Source
		result.Stale = res.Stale
		result.ForDate = res.Snapshot.ForDate
		result.CapturedAt = res.Snapshot.CapturedAt
		result.Records = res.Snapshot.Records
		if res.Err != nil && res.Source == cache.SourceCache {
			result.Warning = "live refresh failed, showing cached data"
		}
	}

	records := append(make([]*schedule.Record, 0, len(result.Records)), f.Apply(result.Records)...)
	sortRecords(records, order)
	result.Records = records
	result.Count = len(records)
	if !f.IsEmpty() {
		result.Filter = f.String()
	}

	if err := WriteOutput(cmd.OutOrStdout(), result, format, flagVerbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	before, err := a.manager.Bootstrap(ctx)
	if err != nil {
		a.log.Warn("Failed to load cache", nil, err)
	}

	res, err := a.manager.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refreshing schedule: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fetched %d departures for %s.\n",
		len(res.Snapshot.Records), dateLabel(res.Snapshot.ForDate))

	if res.Err != nil {
		return fmt.Errorf("saving schedule: %w", res.Err)
	}

	after := a.manager.State()
	if after.Previous != nil && after.Previous != before.Previous {
		fmt.Fprintf(out, "Archived the schedule for %s as previous.\n", dateLabel(after.Previous.ForDate))
		return nil
	}

	if before.Current != nil && before.Current.ForDate == res.Snapshot.ForDate {
		writeChanges(out, schedule.Diff(before.Current, res.Snapshot))
	}
	return nil
}

// writeChanges reports how a same-day refresh differs from the cached schedule
func writeChanges(w io.Writer, d *schedule.DiffResult) {
	if d.IsEmpty() {
		fmt.Fprintln(w, "No changes since the last fetch.")
		return
	}

	fmt.Fprintf(w, "Changes since the last fetch: %d added, %d removed, %d changed.\n",
		len(d.Added), len(d.Removed), len(d.Changes))
	for _, r := range d.Added {
		fmt.Fprintf(w, "  + %s %s\n", r.Time, r.Route)
	}
	for _, r := range d.Removed {
		fmt.Fprintf(w, "  - %s %s\n", r.Time, r.Route)
	}
	for _, c := range d.Changes {
		fmt.Fprintf(w, "  ~ %s %s: %s %q → %q\n", c.Record.Time, c.Record.Route, c.Field, c.OldValue, c.NewValue)
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, cmd.ErrOrStderr())

	out := flagOut
	if out == "" {
		out = cfg.Bundle.Path
	}
	if out == "" || strings.HasPrefix(out, "http://") || strings.HasPrefix(out, "https://") {
		return fmt.Errorf("--out must name a local file")
	}

	direct := []fetch.Strategy{{Label: "direct", URL: cfg.Source.URL}}
	chainCfg := cfg.ChainConfig()
	chainCfg.Timeout = flagTimeout

	chain := fetch.NewChain(direct, fetch.NewHTTPFetcher(nil, cfg.Source.UserAgent), newParser(cfg), chainCfg).
		WithLogger(log)

	snap, err := chain.AcquireLive(cmd.Context())
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}

	if err := storage.WriteBundle(out, snap); err != nil {
		return err
	}

	log.Info("Bundle written", logger.Fields{"path": out, "records": len(snap.Records)})
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d items to %s for date %s\n", len(snap.Records), out, snap.ForDate)
	return nil
}

// StatusEntry describes one cached generation
type StatusEntry struct {
	Generation schedule.Generation `json:"generation"`
	Present    bool                `json:"present"`
	ForDate    string              `json:"for_date,omitempty"`
	Records    int                 `json:"records,omitempty"`
	CapturedAt *time.Time          `json:"captured_at,omitempty"`
	Stale      bool                `json:"stale"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	if format == FormatICS {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}

	gens := []schedule.Generation{schedule.Current, schedule.Previous}
	if len(args) == 1 {
		gen, ok := schedule.ParseGeneration(args[0])
		if !ok {
			return fmt.Errorf("invalid generation: %s (must be 'current' or 'previous')", args[0])
		}
		gens = []schedule.Generation{gen}
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.manager.Bootstrap(ctx)
	if err != nil {
		a.log.Warn("Failed to load part of the cache", nil, err)
	}

	now := time.Now()
	entries := make([]StatusEntry, 0, len(gens))
	for _, gen := range gens {
		entries = append(entries, statusEntry(gen, state.Get(gen), a, now))
	}

	out := cmd.OutOrStdout()
	if format == FormatJSON {
		return writeJSONValue(out, entries)
	}

	for _, e := range entries {
		if !e.Present {
			fmt.Fprintf(out, "%-9s none\n", e.Generation+":")
			continue
		}
		freshness := "fresh"
		if e.Stale {
			freshness = "stale"
		}
		fmt.Fprintf(out, "%-9s %s, %d departures, captured %s (%s)\n",
			e.Generation+":", dateLabel(e.ForDate), e.Records,
			e.CapturedAt.Local().Format("02.01 15:04"), freshness)
	}
	return nil
}

func statusEntry(gen schedule.Generation, snap *schedule.Snapshot, a *app, now time.Time) StatusEntry {
	if snap == nil {
		return StatusEntry{Generation: gen}
	}
	captured := snap.CapturedAt
	return StatusEntry{
		Generation: gen,
		Present:    true,
		ForDate:    snap.ForDate,
		Records:    len(snap.Records),
		CapturedAt: &captured,
		Stale:      a.evaluator.SnapshotIsStale(snap, now),
	}
}

func dateLabel(forDate string) string {
	if forDate == "" {
		return "an undated schedule"
	}
	return forDate
}

// Execute runs the CLI
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the root command and maps the outcome to an exit code.
// Interrupts cancel in-flight fetches.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cache.ErrNoDataAvailable) {
			fmt.Fprintln(stderr, "Error: the schedule could not be loaded. The source is unavailable; try again later.")
			if flagVerbose {
				fmt.Fprintf(stderr, "Cause: %v\n", err)
			}
			return ExitError
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}
