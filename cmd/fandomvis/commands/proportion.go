package commands

import (
	"os"

	"fandom-vis/internal/index"
	"fandom-vis/internal/report"
	"fandom-vis/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	proportionLimit  int
	proportionFormat string
)

var proportionCmd = &cobra.Command{
	Use:   "proportion",
	Short: "Shows how many works each of the most frequent relationships had per month.",
	Run: func(cmd *cobra.Command, args []string) {
		format, err := report.ParseFormat(proportionFormat)
		if err != nil {
			serviceutil.Fatal("invalid --format", err)
		}

		idx := mustOpenIndex()
		defer idx.Close()

		series, err := idx.MonthlyHistogram(cmd.Context(), index.HistogramQuery{
			Kind: index.TAG_RELATIONSHIP,
			Size: proportionLimit,
		})
		if err != nil {
			serviceutil.Fatal("failed to query monthly histogram", err)
		}
		err = report.ProportionTable(os.Stdout, format, series)
		if err != nil {
			serviceutil.Fatal("failed to render table", err)
		}
	},
}

func init() {
	flags := proportionCmd.Flags()
	flags.IntVar(&proportionLimit, "limit", 5, "number of most frequent relationships shown")
	flags.StringVar(&proportionFormat, "format", "table", "output format: table, markdown or csv")

	rootCmd.AddCommand(proportionCmd)
}
