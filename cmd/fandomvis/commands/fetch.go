package commands

import (
	"bufio"
	"log/slog"
	"time"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/fetch"
	"fandom-vis/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	fetchStart           int
	fetchCount           int
	fetchInterval        time.Duration
	fetchThreads         int
	fetchFandom          string
	fetchCreators        string
	fetchOut             string
	fetchSkipBrokenPages bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetches pages of search results and writes their works as line delimited json.",
	Run: func(cmd *cobra.Command, args []string) {
		interval := cfg.Fetch.IntervalDuration()
		if cmd.Flags().Changed("interval") {
			interval = fetchInterval
		}
		threads := cfg.Fetch.Workers
		if cmd.Flags().Changed("threads") {
			threads = fetchThreads
		}

		driver, err := fetch.NewDriver(fetch.Options{
			Endpoint: cfg.Fetch.Endpoint,
			Query: archive.SearchQuery{
				Fandom:   fetchFandom,
				Creators: fetchCreators,
			},
			Start:             fetchStart,
			Count:             fetchCount,
			Workers:           threads,
			Interval:          interval,
			RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
			SkipBrokenPages:   fetchSkipBrokenPages,
		}, tel)
		if err != nil {
			serviceutil.Fatal("invalid fetch options", err)
		}

		out, err := serviceutil.CreateOutput(fetchOut)
		if err != nil {
			serviceutil.Fatal("failed to create output", err)
		}
		defer out.Close()
		buffered := bufio.NewWriter(out)
		writer := archive.NewWriter(buffered)

		summary, err := driver.Run(cmd.Context(), func(page int, works []archive.Work) error {
			slog.Info("processed page", "page", page, "works", len(works))
			err := writer.Write(works...)
			if err != nil {
				return err
			}
			return buffered.Flush()
		})
		if err != nil {
			serviceutil.Fatal("failed to fetch works", err)
		}

		slog.Info(
			"fetch finished",
			"pages", summary.Pages,
			"works", summary.Works,
			"skipped_pages", summary.SkippedPages,
			"last_page", summary.LastPage,
			"exhausted", summary.Exhausted,
		)
	},
}

func init() {
	flags := fetchCmd.Flags()
	flags.IntVar(&fetchStart, "start", 1, "page to start fetching from")
	flags.IntVar(&fetchCount, "count", 1, "number of pages to fetch at most")
	flags.DurationVar(&fetchInterval, "interval", 0, "time a worker waits after each request (default from config)")
	flags.IntVarP(&fetchThreads, "threads", "n", 1, "number of pages fetched in parallel (default from config)")
	flags.StringVar(&fetchFandom, "fandom", "", "only fetch works tagged with this fandom")
	flags.StringVar(&fetchCreators, "creators", "", "only fetch works by these creators")
	flags.StringVarP(&fetchOut, "out", "o", "-", "file the works are written to, - for stdout")
	flags.BoolVar(&fetchSkipBrokenPages, "skip-broken-pages", false, "skip pages that cannot be extracted instead of stopping")

	rootCmd.AddCommand(fetchCmd)
}
