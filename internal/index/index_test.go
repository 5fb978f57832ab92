package index

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

type memoryIndex struct {
	ensured bool
	chunks  [][]archive.Work
	failAt  int
}

func (m *memoryIndex) Ensure(ctx context.Context) error {
	m.ensured = true
	return nil
}

func (m *memoryIndex) Upsert(ctx context.Context, works []archive.Work) error {
	if m.failAt > 0 && len(m.chunks)+1 == m.failAt {
		return errors.New("bulk rejected")
	}
	m.chunks = append(m.chunks, works)
	return nil
}

func (m *memoryIndex) Frequencies(ctx context.Context, query TermsQuery) ([]Bucket, error) {
	return nil, nil
}

func (m *memoryIndex) MonthlyHistogram(ctx context.Context, query HistogramQuery) ([]Series, error) {
	return nil, nil
}

func (m *memoryIndex) SignificantTags(ctx context.Context, query SignificantQuery) ([]SignificantGroup, error) {
	return nil, nil
}

func (m *memoryIndex) Close() error {
	return nil
}

const works = `{"id":"1","title":"a","relationships":[],"characters":[],"freeforms":[],"date":"2020-12-05"}
{"id":"2","title":"b","relationships":[],"characters":[],"freeforms":[],"date":"2020-12-05"}

{"id":"3","title":"c","relationships":[],"characters":[],"freeforms":[],"date":"2020-12-06"}
`

func TestLoad(t *testing.T) {
	idx := &memoryIndex{}
	tel := telemetry.NewRecorder()

	n, err := Load(context.Background(), idx, strings.NewReader(works), 2, tel)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, idx.ensured)
	require.Len(t, idx.chunks, 2)
	require.Len(t, idx.chunks[0], 2)
	require.Equal(t, "3", idx.chunks[1][0].Id)

	counts := tel.Records(telemetry.RECORD_COUNT)
	require.Len(t, counts, 2)
	require.Equal(t, int64(3), counts[1].Count)
}

func TestLoadFailure(t *testing.T) {
	idx := &memoryIndex{failAt: 2}
	tel := telemetry.NewRecorder()

	n, err := Load(context.Background(), idx, strings.NewReader(works), 2, tel)
	require.Error(t, err)
	require.Contains(t, err.Error(), "chunk 1")
	require.Equal(t, 2, n)
	require.Len(t, tel.Records(telemetry.RECORD_BROKEN), 1)
}

func TestTagKind(t *testing.T) {
	testCases := []struct {
		text  string
		kind  TagKind
		field string
	}{
		{text: "relationship", kind: TAG_RELATIONSHIP, field: "relationships"},
		{text: "Characters", kind: TAG_CHARACTER, field: "characters"},
		{text: " freeform ", kind: TAG_FREEFORM, field: "freeforms"},
	}

	for _, test := range testCases {
		kind, err := ParseTagKind(test.text)
		require.NoError(t, err, test.text)
		require.Equal(t, test.kind, kind)
		require.Equal(t, test.field, kind.Field())
	}

	_, err := ParseTagKind("warnings")
	require.Error(t, err)

	work := archive.Work{
		Relationships: []string{"A/B"},
		Characters:    []string{"A", "B"},
		Freeforms:     []string{"Fluff"},
	}
	require.Equal(t, []string{"A", "B"}, TAG_CHARACTER.Tags(work))
	require.Equal(t, []string{"Fluff"}, TAG_FREEFORM.Tags(work))
}

func TestMonthStart(t *testing.T) {
	at := time.Date(2021, time.March, 17, 22, 5, 0, 0, time.FixedZone("X", -5*60*60))
	require.Equal(t, time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC), MonthStart(at))
}
