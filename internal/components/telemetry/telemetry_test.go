package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	recorder := NewRecorder()
	scoped := NewScopedAPI("driver", NewScopedAPI("fetch", recorder))

	scoped.ReportWarning("fetch-page", 3)
	scoped.ReportBroken("parse-page", "boom")
	scoped.ReportCount("works", 20)

	warnings := recorder.Records(RECORD_WARNING)
	require.Len(t, warnings, 1)
	require.Equal(t, "fetch: driver: fetch-page", warnings[0].Id)
	require.Equal(t, []any{3}, warnings[0].Params)

	broken := recorder.Records(RECORD_BROKEN)
	require.Len(t, broken, 1)
	require.Equal(t, "fetch: driver: parse-page", broken[0].Id)

	counts := recorder.Records(RECORD_COUNT)
	require.Len(t, counts, 1)
	require.Equal(t, int64(20), counts[0].Count)

	require.Empty(t, recorder.Records(RECORD_DEBUG))
}

func TestSlogAPICount(t *testing.T) {
	api := NewSlogAPI()
	// records against the no-op global meter provider, twice to hit the cached gauge
	api.ReportCount("works", 1)
	api.ReportCount("works", 2)

	var zero SlogAPI
	zero.ReportCount("works", 3)
}
