// Package cmd wires the longbox command line interface.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"

	"github.com/lepinkainen/longbox/internal/cache"
	"github.com/lepinkainen/longbox/internal/cbl"
	"github.com/lepinkainen/longbox/internal/comicvine"
	"github.com/lepinkainen/longbox/internal/config"
	apperrors "github.com/lepinkainen/longbox/internal/errors"
	"github.com/lepinkainen/longbox/internal/ratelimit"
	"github.com/lepinkainen/longbox/internal/runner"
	"github.com/lepinkainen/longbox/internal/scraper"
	"github.com/lepinkainen/longbox/internal/tui"
)

// How long a running batch gets to wind down after an interrupt.
const stopGracePeriod = 10 * time.Second

// CLI represents the complete command structure for longbox.
type CLI struct {
	// Global flags
	Config  string `help:"Path to config file"`
	CacheDB string `help:"Path to SQLite cache database"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Parse       ParseCmd       `cmd:"" help:"Parse a single reading order URL into a .cbl file"`
	Batch       BatchCmd       `cmd:"" help:"Process multiple reading order URLs from a file"`
	Discover    DiscoverCmd    `cmd:"" help:"Discover available reading orders from the site's index pages"`
	Prepopulate PrepopulateCmd `cmd:"" help:"Prepopulate the cache from existing .cbl files"`
	Stats       StatsCmd       `cmd:"" help:"Show cache statistics"`
	Purge       PurgeCmd       `cmd:"" help:"Remove expired entries from the cache"`
}

// ParseCmd parses one reading order page.
type ParseCmd struct {
	URL         string `arg:"" help:"URL or relative path to the reading order page"`
	Output      string `short:"o" help:"Output .cbl file path (default: derived from the page name)"`
	Name        string `short:"n" help:"Reading list name (default: derived from the URL)"`
	Interactive bool   `short:"i" help:"Pick interactively when a series is ambiguous"`
	DryRun      bool   `help:"Show what would be created without writing"`
}

// BatchCmd processes a file of reading order URLs, one per line.
type BatchCmd struct {
	URLFile     string `arg:"" help:"File containing reading order URLs, one per line"`
	OutputDir   string `help:"Output directory for .cbl files"`
	Interactive bool   `short:"i" help:"Pick interactively when a series is ambiguous"`
}

// DiscoverCmd lists every reading order found on the site's indexes.
type DiscoverCmd struct {
	Refresh bool `help:"Ignore the discovery cache and rescan the index pages"`
}

// PrepopulateCmd seeds series mappings from existing output files.
type PrepopulateCmd struct {
	Directory string `arg:"" help:"Directory containing .cbl files"`
}

// StatsCmd shows cache statistics.
type StatsCmd struct{}

// PurgeCmd removes expired cache entries.
type PurgeCmd struct{}

type appEnv struct {
	cfg *config.Config
}

// Execute runs the Kong-based CLI.
func Execute() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("longbox"),
		kong.Description("Turns comicbookreadingorders.com reading orders into ComicRack .cbl reading lists."),
		kong.UsageOnError(),
	)

	initLogging(cli.Verbose)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cli.CacheDB != "" {
		cfg.CacheDBPath = cli.CacheDB
	}

	if err := ctx.Run(&appEnv{cfg: cfg}); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func openStore(env *appEnv) (*cache.Store, error) {
	return cache.Open(env.cfg.CacheDBPath, env.cfg.CacheExpiry)
}

func newMatcher(env *appEnv, store *cache.Store, interactive bool) *comicvine.Matcher {
	limiter := ratelimit.New("ComicVine",
		env.cfg.RateLimitRequests,
		env.cfg.RateLimitWindow,
		env.cfg.RateLimitMinSpacing)

	client := comicvine.NewClient(env.cfg.ComicVineAPIKey,
		comicvine.WithBaseURL(env.cfg.ComicVineBaseURL),
		comicvine.WithRateLimiter(limiter))

	opts := []comicvine.MatcherOption{}
	if interactive {
		opts = append(opts, comicvine.WithVolumePicker(tui.VolumePicker()))
	}

	return comicvine.NewMatcher(client, store, opts...)
}

func newScraper(env *appEnv) *scraper.Scraper {
	return scraper.New(
		scraper.WithBaseURL(env.cfg.CBROBaseURL),
		scraper.WithCrawlDelay(env.cfg.CrawlDelay))
}

// runInterruptible runs the task on a background worker and turns the
// first interrupt into a cooperative stop with a grace period.
func runInterruptible(task func(ctx context.Context) error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	w := runner.Start(context.Background(), task)

	select {
	case <-w.Done():
		return w.Wait()
	case <-sigCh:
		slog.Warn("Interrupted, finishing current reference")
		err := w.Stop(stopGracePeriod)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// Run parses a single reading order and writes its reading list.
func (c *ParseCmd) Run(env *appEnv) error {
	if err := env.cfg.RequireAPIKey(); err != nil {
		return err
	}

	store, err := openStore(env)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return runInterruptible(func(ctx context.Context) error {
		return processURL(ctx, env, store, processOptions{
			url:         c.URL,
			name:        c.Name,
			output:      c.Output,
			interactive: c.Interactive,
			dryRun:      c.DryRun,
		})
	})
}

type processOptions struct {
	url         string
	name        string
	output      string
	interactive bool
	dryRun      bool
}

func processURL(ctx context.Context, env *appEnv, store *cache.Store, opts processOptions) error {
	s := newScraper(env)

	slog.Info("Fetching reading order", "url", opts.url)
	parsed, err := s.FetchReadingOrder(ctx, opts.url)
	if err != nil {
		return err
	}
	if len(parsed) == 0 {
		return fmt.Errorf("no issues found on %s", opts.url)
	}
	slog.Info("Parsed reading order", "issues", len(parsed))

	matcher := newMatcher(env, store, opts.interactive)
	result, err := runner.MatchAll(ctx, matcher, parsed)
	if err != nil {
		if apperrors.IsStopProcessingError(err) {
			slog.Info("Stopped by user, nothing written")
			return nil
		}
		return err
	}

	name := opts.name
	if name == "" {
		name = scraper.ReadingOrderName(opts.url)
	}

	if opts.dryRun {
		slog.Info("Dry run, nothing written",
			"name", name,
			"books", len(result.Books),
			"matched", result.Matched)
		return nil
	}

	output := opts.output
	if output == "" {
		output = name + ".cbl"
	}

	list := &cbl.ReadingList{Name: name}
	for i := range result.Books {
		list.Books = append(list.Books, cbl.BookFromMatch(&result.Books[i]))
	}

	if err := cbl.Write(list, output); err != nil {
		return err
	}

	slog.Info("Wrote reading list",
		"path", output,
		"books", len(list.Books),
		"matched", result.Matched,
		"unmatched", len(result.Unmatched))
	return nil
}

// Run processes every URL in the batch file.
func (c *BatchCmd) Run(env *appEnv) error {
	if err := env.cfg.RequireAPIKey(); err != nil {
		return err
	}

	urls, err := readURLFile(c.URLFile)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs found in %s", c.URLFile)
	}

	outputDir := c.OutputDir
	if outputDir == "" {
		outputDir = env.cfg.OutputDir
	}

	store, err := openStore(env)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return runInterruptible(func(ctx context.Context) error {
		for i, pageURL := range urls {
			if err := ctx.Err(); err != nil {
				return err
			}

			slog.Info("Processing reading order",
				"url", pageURL,
				"position", fmt.Sprintf("%d/%d", i+1, len(urls)))

			name := scraper.ReadingOrderName(pageURL)
			err := processURL(ctx, env, store, processOptions{
				url:         pageURL,
				name:        name,
				output:      filepath.Join(outputDir, name+".cbl"),
				interactive: c.Interactive,
			})
			if err != nil {
				if apperrors.IsStopProcessingError(err) || ctx.Err() != nil {
					return err
				}
				slog.Error("Failed to process reading order", "url", pageURL, "error", err)
			}
		}
		return nil
	})
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL file: %w", err)
	}
	return urls, nil
}

// Run lists all discoverable reading orders.
func (c *DiscoverCmd) Run(env *appEnv) error {
	cachePath := filepath.Join(filepath.Dir(env.cfg.CacheDBPath), "reading_orders_cache.json")

	var entries []scraper.ReadingOrderEntry
	if !c.Refresh {
		cached, err := scraper.LoadCachedOrders(cachePath)
		if err != nil {
			return err
		}
		entries = cached
	}

	if entries == nil {
		s := newScraper(env)
		discovered, err := s.FetchAllReadingOrders(context.Background(), scraper.DefaultIndexPages,
			func(current, total int, message string) {
				slog.Info(message, "page", fmt.Sprintf("%d/%d", current, total))
			})
		if err != nil {
			return err
		}
		if err := scraper.SaveOrdersCache(cachePath, discovered); err != nil {
			slog.Warn("Failed to save discovery cache", "error", err)
		}
		entries = discovered
	}

	for _, entry := range entries {
		fmt.Printf("%s\n  %s\n", entry.DisplayName(), entry.URL)
	}
	fmt.Printf("\n%d reading orders\n", len(entries))
	return nil
}

// Run seeds the cache from existing reading lists.
func (c *PrepopulateCmd) Run(env *appEnv) error {
	if _, err := os.Stat(c.Directory); err != nil {
		return fmt.Errorf("directory not found: %s", c.Directory)
	}

	store, err := openStore(env)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	added, err := cbl.Prepopulate(store, c.Directory)
	if err != nil {
		return err
	}

	fmt.Printf("Prepopulated cache with %d series mappings\n", added)
	fmt.Println("Mappings will be verified against ComicVine on first use")
	return nil
}

// Run prints cache statistics.
func (c *StatsCmd) Run(env *appEnv) error {
	store, err := openStore(env)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Cache: %s\n", env.cfg.CacheDBPath)
	fmt.Printf("  Volumes:         %d\n", stats.Volumes)
	fmt.Printf("  Issues:          %d\n", stats.Issues)
	fmt.Printf("  Series mappings: %d\n", stats.Mappings)
	return nil
}

// Run removes expired cache entries.
func (c *PurgeCmd) Run(env *appEnv) error {
	store, err := openStore(env)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.PurgeExpired()
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d expired cache entries\n", removed)
	return nil
}
