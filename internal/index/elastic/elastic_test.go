package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/components/telemetry"
	"fandom-vis/internal/index"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type request struct {
	method string
	path   string
	query  string
	body   []byte
}

// fakeCluster answers every request with the response registered for its
// method and path and remembers what it was sent.
type fakeCluster struct {
	responses map[string]func(w http.ResponseWriter)
	requests  []request
}

func newFakeCluster(t *testing.T) (*fakeCluster, *Client) {
	cluster := &fakeCluster{responses: map[string]func(w http.ResponseWriter){}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		cluster.requests = append(cluster.requests, request{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   body,
		})

		respond, ok := cluster.responses[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("content-type", "application/json")
		respond(w)
	}))
	t.Cleanup(server.Close)

	client := New(Options{Endpoint: server.URL + "/"}, telemetry.NewRecorder())
	return cluster, client
}

func (f *fakeCluster) on(method, path string, status int, body string) {
	f.responses[method+" "+path] = func(w http.ResponseWriter) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestEnsure(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.on("PUT", "/works", http.StatusOK, `{"acknowledged":true}`)

	require.NoError(t, client.Ensure(context.Background()))
	require.Len(t, cluster.requests, 1)

	body := decodeBody(t, cluster.requests[0].body)
	properties := body["mappings"].(map[string]any)["properties"].(map[string]any)
	for _, kind := range index.TagKinds() {
		require.Equal(t, map[string]any{"type": "keyword"}, properties[kind.Field()], kind.Field())
	}
	require.Equal(t, "date", properties["date"].(map[string]any)["type"])
}

func TestEnsureExisting(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.on("PUT", "/works", http.StatusBadRequest, `{
		"error": {"type": "resource_already_exists_exception", "reason": "index [works] already exists"},
		"status": 400
	}`)
	cluster.on("PUT", "/works/_mapping", http.StatusOK, `{"acknowledged":true}`)

	require.NoError(t, client.Ensure(context.Background()))
	require.Len(t, cluster.requests, 2)
	require.Contains(t, decodeBody(t, cluster.requests[1].body), "properties")
}

func TestEnsureFailure(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.on("PUT", "/works", http.StatusForbidden, `{
		"error": {"type": "security_exception", "reason": "missing authentication credentials"},
		"status": 403
	}`)

	err := client.Ensure(context.Background())
	var resErr *ResponseError
	require.True(t, errors.As(err, &resErr))
	require.Equal(t, http.StatusForbidden, resErr.Status)
	require.Equal(t, "security_exception", resErr.Type)
}

func testWorks() []archive.Work {
	return []archive.Work{
		{
			Id:            "1",
			Title:         "One",
			Relationships: []string{"Alice/Bob"},
			Characters:    []string{"Alice", "Bob"},
			Freeforms:     []string{},
			Date:          archive.NewDate(2020, time.December, 5),
		},
		{
			Id:            "2",
			Title:         "Two",
			Relationships: []string{},
			Characters:    []string{},
			Freeforms:     []string{"Fluff"},
			Date:          archive.NewDate(2021, time.January, 1),
		},
	}
}

func TestUpsert(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.on("POST", "/_bulk", http.StatusOK, `{"took":3,"errors":false,"items":[
		{"index":{"_id":"1","status":201}},
		{"index":{"_id":"2","status":200}}
	]}`)

	require.NoError(t, client.Upsert(context.Background(), testWorks()))
	require.Len(t, cluster.requests, 1)

	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(cluster.requests[0].body)))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 4)

	action := decodeBody(t, []byte(lines[2]))
	require.Equal(t, map[string]any{"_index": "works", "_id": "2"}, action["index"])

	doc := decodeBody(t, []byte(lines[3]))
	require.Equal(t, "2021-01-01", doc["date"])
	require.Equal(t, []any{"Fluff"}, doc["freeforms"])

	require.NoError(t, client.Upsert(context.Background(), nil))
	require.Len(t, cluster.requests, 1)
}

func TestUpsertRejected(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.on("POST", "/_bulk", http.StatusOK, `{"took":3,"errors":true,"items":[
		{"index":{"_id":"1","status":201}},
		{"index":{"_id":"2","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [date]"}}}
	]}`)

	err := client.Upsert(context.Background(), testWorks())
	var bulkErr *BulkError
	require.True(t, errors.As(err, &bulkErr))
	require.Equal(t, &BulkError{
		Failed:      1,
		Total:       2,
		FirstId:     "2",
		FirstReason: "failed to parse field [date]",
	}, bulkErr)
}

func TestFrequencies(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.on("POST", "/works/_search", http.StatusOK, `{
		"hits": {"total": {"value": 10, "relation": "eq"}, "hits": []},
		"aggregations": {
			"aggregation_key": {
				"doc_count_error_upper_bound": 0,
				"sum_other_doc_count": 4,
				"buckets": [
					{"key": "Alice/Bob", "doc_count": 5},
					{"key": "Bob/Carol", "doc_count": 2}
				]
			}
		}
	}`)

	buckets, err := client.Frequencies(context.Background(), index.TermsQuery{
		Kind:        index.TAG_RELATIONSHIP,
		Size:        10,
		MinDocCount: 2,
	})
	require.NoError(t, err)
	diff := cmp.Diff([]index.Bucket{
		{Key: "Alice/Bob", Count: 5},
		{Key: "Bob/Carol", Count: 2},
	}, buckets)
	if diff != "" {
		t.Fatal(diff)
	}

	require.Contains(t, cluster.requests[0].query, "allow_no_indices=true")
	body := decodeBody(t, cluster.requests[0].body)
	terms := body["aggs"].(map[string]any)[AGGREGATION_KEY].(map[string]any)["terms"].(map[string]any)
	require.Equal(t, "relationships", terms["field"])
	require.Equal(t, float64(2), terms["min_doc_count"])
	require.Equal(t, float64(10), terms["size"])
	require.Equal(t, float64(0), body["size"])
}

func TestQueryShapeError(t *testing.T) {
	testCases := []struct {
		response string
		path     string
	}{
		{
			response: `{"hits": {}}`,
			path:     "$.aggregations",
		},
		{
			response: `{"aggregations": {"aggregation_key": {}}}`,
			path:     "$.aggregations.aggregation_key.buckets",
		},
		{
			response: `{"aggregations": {"aggregation_key": {"buckets": {}}}}`,
			path:     "$.aggregations.aggregation_key.buckets",
		},
		{
			response: `{"aggregations": {"aggregation_key": {"buckets": [{"key": "A/B", "doc_count": 1}, {"key": 3, "doc_count": 1}]}}}`,
			path:     "$.aggregations.aggregation_key.buckets[1].key",
		},
		{
			response: `{"aggregations": {"aggregation_key": {"buckets": [{"key": "A/B", "doc_count": "many"}]}}}`,
			path:     "$.aggregations.aggregation_key.buckets[0].doc_count",
		},
	}

	for _, test := range testCases {
		cluster, client := newFakeCluster(t)
		cluster.on("POST", "/works/_search", http.StatusOK, test.response)

		_, err := client.Frequencies(context.Background(), index.TermsQuery{Kind: index.TAG_RELATIONSHIP, Size: 1})
		var shapeErr *index.QueryShapeError
		require.True(t, errors.As(err, &shapeErr), test.response)
		require.Equal(t, test.path, shapeErr.Path)
		require.Equal(t, report_frequencies, shapeErr.Query)
	}
}

func TestMonthlyHistogram(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.on("POST", "/works/_search", http.StatusOK, `{
		"aggregations": {
			"aggregation_key": {
				"buckets": [
					{
						"key": "Alice/Bob",
						"doc_count": 3,
						"aggregation_key": {
							"buckets": [
								{"key_as_string": "2020-12-01", "key": 1606780800000, "doc_count": 2},
								{"key_as_string": "2021-01-01", "key": 1609459200000, "doc_count": 0},
								{"key_as_string": "2021-02-01", "key": 1612137600000, "doc_count": 1}
							]
						}
					}
				]
			}
		}
	}`)

	series, err := client.MonthlyHistogram(context.Background(), index.HistogramQuery{
		Kind: index.TAG_RELATIONSHIP,
		Size: 5,
	})
	require.NoError(t, err)
	diff := cmp.Diff([]index.Series{
		{
			Key:   "Alice/Bob",
			Count: 3,
			Months: []index.Month{
				{Start: time.Date(2020, time.December, 1, 0, 0, 0, 0, time.UTC), Count: 2},
				{Start: time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC), Count: 0},
				{Start: time.Date(2021, time.February, 1, 0, 0, 0, 0, time.UTC), Count: 1},
			},
		},
	}, series)
	if diff != "" {
		t.Fatal(diff)
	}

	body := decodeBody(t, cluster.requests[0].body)
	sub := body["aggs"].(map[string]any)[AGGREGATION_KEY].(map[string]any)["aggs"].(map[string]any)[AGGREGATION_KEY].(map[string]any)
	histogram := sub["date_histogram"].(map[string]any)
	require.Equal(t, "1M", histogram["calendar_interval"])
	require.Equal(t, "date", histogram["field"])
}

func TestSignificantTags(t *testing.T) {
	cluster, client := newFakeCluster(t)
	cluster.on("POST", "/works/_search", http.StatusOK, `{
		"aggregations": {
			"aggregation_key": {
				"buckets": [
					{
						"key": "Alice/Bob",
						"doc_count": 40,
						"aggregation_key": {
							"doc_count": 40,
							"bg_count": 1000,
							"buckets": [
								{"key": "Fluff", "doc_count": 30, "score": 1.25, "bg_count": 200}
							]
						}
					},
					{
						"key": "Bob/Carol",
						"doc_count": 12,
						"aggregation_key": {"doc_count": 12, "bg_count": 1000, "buckets": []}
					}
				]
			}
		}
	}`)

	groups, err := client.SignificantTags(context.Background(), index.SignificantQuery{
		GroupKind: index.TAG_RELATIONSHIP,
		GroupSize: 50,
		Kind:      index.TAG_FREEFORM,
		Size:      5,
	})
	require.NoError(t, err)
	diff := cmp.Diff([]index.SignificantGroup{
		{
			Key:   "Alice/Bob",
			Count: 40,
			Tags:  []index.SignificantTag{{Key: "Fluff", Count: 30, Score: 1.25}},
		},
		{
			Key:   "Bob/Carol",
			Count: 12,
			Tags:  []index.SignificantTag{},
		},
	}, groups)
	if diff != "" {
		t.Fatal(diff)
	}

	body := decodeBody(t, cluster.requests[0].body)
	sub := body["aggs"].(map[string]any)[AGGREGATION_KEY].(map[string]any)["aggs"].(map[string]any)[AGGREGATION_KEY].(map[string]any)
	require.Equal(t, "freeforms", sub["significant_terms"].(map[string]any)["field"])
}
