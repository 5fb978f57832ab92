package commands

import (
	"log/slog"

	"fandom-vis/internal/index"
	"fandom-vis/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	indexInput     string
	indexChunkSize int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Loads line delimited works into the index, replacing works with the same id.",
	Run: func(cmd *cobra.Command, args []string) {
		chunkSize := cfg.ChunkSize
		if cmd.Flags().Changed("chunk-size") {
			chunkSize = indexChunkSize
		}

		in, err := serviceutil.OpenInput(indexInput)
		if err != nil {
			serviceutil.Fatal("failed to open input", err)
		}
		defer in.Close()

		idx := mustOpenIndex()
		defer idx.Close()

		n, err := index.Load(cmd.Context(), idx, in, chunkSize, tel)
		if err != nil {
			serviceutil.Fatal("failed to index works", err)
		}
		slog.Info("indexed works", "works", n, "backend", cfg.Backend)
	},
}

func init() {
	flags := indexCmd.Flags()
	flags.StringVarP(&indexInput, "input", "i", "-", "works to index, - for stdin")
	flags.IntVar(&indexChunkSize, "chunk-size", 1024, "number of works uploaded in one request (default from config)")

	rootCmd.AddCommand(indexCmd)
}
