package commands

import (
	"os"

	"fandom-vis/internal/index"
	"fandom-vis/internal/report"
	"fandom-vis/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	frequenciesKind     string
	frequenciesLimit    int
	frequenciesMinWorks uint64
	frequenciesFormat   string
)

var frequenciesCmd = &cobra.Command{
	Use:   "frequencies",
	Short: "Lists the most frequent tags of a kind.",
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := index.ParseTagKind(frequenciesKind)
		if err != nil {
			serviceutil.Fatal("invalid --tag-kind", err)
		}
		format, err := report.ParseFormat(frequenciesFormat)
		if err != nil {
			serviceutil.Fatal("invalid --format", err)
		}

		idx := mustOpenIndex()
		defer idx.Close()

		buckets, err := idx.Frequencies(cmd.Context(), index.TermsQuery{
			Kind:        kind,
			Size:        frequenciesLimit,
			MinDocCount: frequenciesMinWorks,
		})
		if err != nil {
			serviceutil.Fatal("failed to query frequencies", err)
		}
		err = report.FrequenciesTable(os.Stdout, format, kind, buckets)
		if err != nil {
			serviceutil.Fatal("failed to render table", err)
		}
	},
}

func init() {
	flags := frequenciesCmd.Flags()
	flags.StringVar(&frequenciesKind, "tag-kind", index.TAG_RELATIONSHIP.String(), "kind of tags: relationship, character or freeform")
	flags.IntVar(&frequenciesLimit, "limit", 20, "number of tags listed")
	flags.Uint64Var(&frequenciesMinWorks, "min-works", 1, "ignore tags with fewer works")
	flags.StringVar(&frequenciesFormat, "format", "table", "output format: table, markdown or csv")

	rootCmd.AddCommand(frequenciesCmd)
}
