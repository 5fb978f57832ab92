package elastic

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/components/telemetry"
	"fandom-vis/internal/index"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startElasticsearch(t *testing.T) string {
	if os.Getenv("FANDOMVIS_INTEGRATION") != "1" {
		t.Skip("set FANDOMVIS_INTEGRATION=1 to run tests against a real elasticsearch")
	}

	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "docker.elastic.co/elasticsearch/elasticsearch:8.14.3",
				ExposedPorts: []string{"9200/tcp"},
				Env: map[string]string{
					"discovery.type":         "single-node",
					"xpack.security.enabled": "false",
					"ES_JAVA_OPTS":           "-Xms512m -Xmx512m",
				},
				WaitingFor: wait.ForHTTP("/_cluster/health").
					WithPort("9200/tcp").
					WithStartupTimeout(3 * time.Minute),
			},
		},
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9200/tcp")
	require.NoError(t, err)
	return "http://" + host + ":" + port.Port()
}

func TestIntegration(t *testing.T) {
	endpoint := startElasticsearch(t)
	ctx := context.Background()

	client := New(Options{Endpoint: endpoint, Refresh: true}, telemetry.NewRecorder())
	defer client.Close()

	require.NoError(t, client.Ensure(ctx))
	// a second call finds the index already created
	require.NoError(t, client.Ensure(ctx))

	works := []archive.Work{
		{Id: "1", Title: "a", Relationships: []string{"Alice/Bob", "Bob/Carol"}, Date: archive.NewDate(2020, time.November, 3)},
		{Id: "2", Title: "b", Relationships: []string{"Alice/Bob"}, Date: archive.NewDate(2021, time.January, 9)},
		{Id: "3", Title: "c", Relationships: []string{"Bob/Carol"}, Date: archive.NewDate(2021, time.January, 20)},
		{Id: "4", Title: "d", Relationships: []string{"Alice/Bob"}, Date: archive.NewDate(2021, time.January, 21)},
	}
	require.NoError(t, client.Upsert(ctx, works))
	// upserting the same id again replaces the stored work
	works[3].Relationships = []string{"Alice/Bob", "Dan/Eve"}
	require.NoError(t, client.Upsert(ctx, works[3:]))

	buckets, err := client.Frequencies(ctx, index.TermsQuery{Kind: index.TAG_RELATIONSHIP, Size: 10, MinDocCount: 1})
	require.NoError(t, err)
	require.Equal(t, []index.Bucket{
		{Key: "Alice/Bob", Count: 3},
		{Key: "Bob/Carol", Count: 2},
		{Key: "Dan/Eve", Count: 1},
	}, buckets)

	series, err := client.MonthlyHistogram(ctx, index.HistogramQuery{Kind: index.TAG_RELATIONSHIP, Size: 1})
	require.NoError(t, err)
	require.Len(t, series, 1)
	require.Equal(t, "Alice/Bob", series[0].Key)
	require.Len(t, series[0].Months, 3)
	require.Equal(t, uint64(0), series[0].Months[1].Count)
	require.Equal(t, uint64(2), series[0].Months[2].Count)
}
