package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"fandom-vis/internal/cooccurrence"
	"fandom-vis/internal/index"
	"fandom-vis/internal/report"
	"fandom-vis/internal/ship"
	"fandom-vis/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	shipsMinWorks         uint64
	shipsLimit            int
	shipsKind             string
	shipsFormat           string
	shipsOut              string
	shipsTitle            string
	shipsSimilarThreshold float64
)

var shipsCmd = &cobra.Command{
	Use:   "ships",
	Short: "Renders the relationships between characters as a chord diagram.",
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := ship.ParseKind(shipsKind)
		if err != nil {
			serviceutil.Fatal("invalid --ship-kind", err)
		}
		format := strings.ToLower(shipsFormat)
		if format != "html" && format != "json" {
			serviceutil.Fatal("invalid --format", fmt.Errorf("unknown format %q (expected html or json)", shipsFormat))
		}

		idx := mustOpenIndex()
		defer idx.Close()

		buckets, err := idx.Frequencies(cmd.Context(), index.TermsQuery{
			Kind:        index.TAG_RELATIONSHIP,
			Size:        shipsLimit,
			MinDocCount: shipsMinWorks,
		})
		if err != nil {
			serviceutil.Fatal("failed to query relationship frequencies", err)
		}

		counts := make([]cooccurrence.TagCount, len(buckets))
		for i, b := range buckets {
			counts[i] = cooccurrence.TagCount{Tag: b.Key, Count: b.Count}
		}
		result := cooccurrence.Aggregate(tel, counts, kind)
		slog.Info(
			"aggregated ships",
			"tags", len(buckets),
			"ships", len(result.Ships),
			"characters", result.Matrix.Size(),
			"dropped", result.Dropped,
		)

		if shipsSimilarThreshold > 0 {
			for _, pair := range cooccurrence.SimilarNames(result.Matrix.Names, shipsSimilarThreshold) {
				slog.Warn(
					"character names look alike, they may be the same character",
					"left", pair.Left,
					"right", pair.Right,
					"similarity", pair.Similarity,
				)
			}
		}

		out, err := serviceutil.CreateOutput(shipsOut)
		if err != nil {
			serviceutil.Fatal("failed to create output", err)
		}
		defer out.Close()

		switch format {
		case "json":
			err = report.ShipCountsJson(out, result.Ships)
		default:
			err = report.Chord(out, report.ChordOptions{
				Matrix: result.Matrix,
				Title:  shipsTitle,
			})
		}
		if err != nil {
			serviceutil.Fatal("failed to render ships", err)
		}
	},
}

func init() {
	flags := shipsCmd.Flags()
	flags.Uint64Var(&shipsMinWorks, "min-works", 50, "ignore relationship tags with fewer works")
	flags.IntVar(&shipsLimit, "limit", 1000, "number of most frequent relationship tags considered")
	flags.StringVar(&shipsKind, "ship-kind", "romantic", "kind of ships drawn: romantic or platonic")
	flags.StringVar(&shipsFormat, "format", "html", "output format: html or json")
	flags.StringVarP(&shipsOut, "out", "o", "-", "file the output is written to, - for stdout")
	flags.StringVar(&shipsTitle, "title", "", "title of the html page")
	flags.Float64Var(&shipsSimilarThreshold, "similar-threshold", 0.92, "warn about character names at least this similar, 0 disables")

	rootCmd.AddCommand(shipsCmd)
}
