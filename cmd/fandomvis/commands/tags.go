package commands

import (
	"os"

	"fandom-vis/internal/index"
	"fandom-vis/internal/report"
	"fandom-vis/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	tagsLimit     int
	tagsGroupSize int
	tagsMinWorks  uint64
	tagsKind      string
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Lists the tags that are unusually common for each of the most frequent relationships.",
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := index.ParseTagKind(tagsKind)
		if err != nil {
			serviceutil.Fatal("invalid --tag-kind", err)
		}

		idx := mustOpenIndex()
		defer idx.Close()

		groups, err := idx.SignificantTags(cmd.Context(), index.SignificantQuery{
			GroupKind:   index.TAG_RELATIONSHIP,
			GroupSize:   tagsGroupSize,
			MinDocCount: tagsMinWorks,
			Kind:        kind,
			Size:        tagsLimit,
		})
		if err != nil {
			serviceutil.Fatal("failed to query significant tags", err)
		}
		err = report.SignificantMarkdown(os.Stdout, groups)
		if err != nil {
			serviceutil.Fatal("failed to render significant tags", err)
		}
	},
}

func init() {
	flags := tagsCmd.Flags()
	flags.IntVar(&tagsLimit, "limit", 5, "number of significant tags listed per relationship")
	flags.IntVar(&tagsGroupSize, "relationships", 50, "number of most frequent relationships listed")
	flags.Uint64Var(&tagsMinWorks, "min-works", 1, "ignore relationships with fewer works")
	flags.StringVar(&tagsKind, "tag-kind", index.TAG_RELATIONSHIP.String(), "kind of significant tags: relationship, character or freeform")

	rootCmd.AddCommand(tagsCmd)
}
