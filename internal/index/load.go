package index

import (
	"context"
	"fmt"
	"io"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/components/assert"
	"fandom-vis/internal/components/telemetry"
)

const (
	report_load_chunk = "load.upsert-chunk"
	report_load_total = "load.works"
)

// Load reads line delimited works from r and upserts them into idx, chunkSize
// works at a time. It returns the number of works loaded.
func Load(ctx context.Context, idx Index, r io.Reader, chunkSize int, tel telemetry.API) (int, error) {
	assert.NotNil(idx)
	assert.NotNil(tel)
	assert.Positive("chunk size", chunkSize)

	err := idx.Ensure(ctx)
	if err != nil {
		return 0, fmt.Errorf("ensure index: %w", err)
	}

	total := 0
	chunkIndex := 0
	err = archive.ReadChunks(r, chunkSize, func(chunk []archive.Work) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tel.ReportDebug("processing chunk", "chunk", chunkIndex, "documents", len(chunk))

		err := idx.Upsert(ctx, chunk)
		if err != nil {
			tel.ReportBroken(report_load_chunk, chunkIndex, err)
			return fmt.Errorf("upsert chunk %d: %w", chunkIndex, err)
		}
		total += len(chunk)
		chunkIndex++
		tel.ReportCount(report_load_total, int64(total))
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, nil
}
