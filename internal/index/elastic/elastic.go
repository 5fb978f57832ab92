// Package elastic implements index.Index on top of the Elasticsearch REST api.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/components/assert"
	"fandom-vis/internal/components/telemetry"
	"fandom-vis/internal/index"

	"github.com/go-resty/resty/v2"
)

const (
	report_ensure            = "ensure"
	report_upsert            = "upsert"
	report_frequencies       = "frequencies"
	report_monthly_histogram = "monthly-histogram"
	report_significant_tags  = "significant-tags"
)

// AGGREGATION_KEY is the name every aggregation in a request is given.
const AGGREGATION_KEY = "aggregation_key"

type Options struct {
	// Endpoint is the base url of the cluster, ex. http://localhost:9200
	Endpoint string
	// Name is the index name, defaults to index.DEFAULT_NAME.
	Name string
	// Refresh makes bulk uploads wait until the works are visible to searches.
	Refresh bool
}

type Client struct {
	http    *resty.Client
	name    string
	refresh bool
	tel     telemetry.API
}

var _ index.Index = (*Client)(nil)

func New(opts Options, tel telemetry.API) *Client {
	assert.NotEmptyStr(opts.Endpoint)
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("elasticsearch", tel)

	name := opts.Name
	if name == "" {
		name = index.DEFAULT_NAME
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(opts.Endpoint, "/"))
	httpClient.SetTimeout(time.Minute)
	httpClient.SetHeader("accept", "application/json")
	telemetry.InstrumentResty(httpClient, tel)

	return &Client{
		http:    httpClient,
		name:    name,
		refresh: opts.Refresh,
		tel:     tel,
	}
}

// ResponseError is a non 2xx response from the cluster.
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func responseError(res *resty.Response) *ResponseError {
	var parsed errorBody
	err := json.Unmarshal(res.Body(), &parsed)
	if err != nil || parsed.Error.Type == "" {
		return &ResponseError{
			Status: res.StatusCode(),
			Reason: strings.TrimSpace(string(res.Body())),
		}
	}
	return &ResponseError{
		Status: res.StatusCode(),
		Type:   parsed.Error.Type,
		Reason: parsed.Error.Reason,
	}
}

var keyword = map[string]any{"type": "keyword"}

func mapping() map[string]any {
	properties := map[string]any{
		"id":       keyword,
		"title":    map[string]any{"type": "text"},
		"author":   keyword,
		"date":     map[string]any{"type": "date", "format": "yyyy-MM-dd"},
		"language": keyword,
		"words":    map[string]any{"type": "long"},
		"kudos":    map[string]any{"type": "long"},
		"hits":     map[string]any{"type": "long"},
	}
	for _, kind := range index.TagKinds() {
		properties[kind.Field()] = keyword
	}
	return map[string]any{"properties": properties}
}

func (c *Client) Ensure(ctx context.Context) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"mappings": mapping()}).
		Put("/" + c.name)
	if err != nil {
		c.tel.ReportBroken(report_ensure, fmt.Errorf("create index: %w", err))
		return err
	}
	if !res.IsError() {
		c.tel.ReportDebug("created index", c.name)
		return nil
	}

	createErr := responseError(res)
	if createErr.Type != "resource_already_exists_exception" {
		c.tel.ReportBroken(report_ensure, createErr)
		return createErr
	}

	// the index exists, make sure the tag fields are keywords on it too
	res, err = c.http.R().
		SetContext(ctx).
		SetBody(mapping()).
		Put("/" + c.name + "/_mapping")
	if err != nil {
		c.tel.ReportBroken(report_ensure, fmt.Errorf("put mapping: %w", err))
		return err
	}
	if res.IsError() {
		mappingErr := responseError(res)
		c.tel.ReportBroken(report_ensure, mappingErr)
		return mappingErr
	}
	return nil
}

// BulkError means some of the works in a bulk upload were rejected.
type BulkError struct {
	Failed int
	Total  int
	// FirstId and FirstReason describe the first rejected work.
	FirstId     string
	FirstReason string
}

func (e *BulkError) Error() string {
	return fmt.Sprintf(
		"bulk upload: %d/%d works rejected, first: work %s: %s",
		e.Failed, e.Total, e.FirstId, e.FirstReason,
	)
}

func (c *Client) Upsert(ctx context.Context, works []archive.Work) error {
	if len(works) == 0 {
		return nil
	}

	body := &bytes.Buffer{}
	encoder := json.NewEncoder(body)
	for _, work := range works {
		err := encoder.Encode(map[string]any{
			"index": map[string]any{
				"_index": c.name,
				"_id":    work.Id,
			},
		})
		if err != nil {
			return err
		}
		err = encoder.Encode(work)
		if err != nil {
			return fmt.Errorf("encode work %s: %w", work.Id, err)
		}
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/x-ndjson").
		SetBody(body.Bytes())
	if c.refresh {
		req.SetQueryParam("refresh", "wait_for")
	}
	res, err := req.Post("/_bulk")
	if err != nil {
		c.tel.ReportBroken(report_upsert, err)
		return err
	}
	if res.IsError() {
		resErr := responseError(res)
		c.tel.ReportBroken(report_upsert, resErr)
		return resErr
	}

	root, err := parseNode("bulk", res.Body())
	if err != nil {
		return err
	}
	errorsNode, err := root.get("errors")
	if err != nil {
		return err
	}
	hasErrors, err := errorsNode.boolean()
	if err != nil {
		return err
	}
	if !hasErrors {
		return nil
	}

	itemsNode, err := root.get("items")
	if err != nil {
		return err
	}
	items, err := itemsNode.array()
	if err != nil {
		return err
	}
	bulkErr := &BulkError{Total: len(works)}
	for _, item := range items {
		action, err := item.get("index")
		if err != nil {
			return err
		}
		reason, failed := action.optional("error")
		if !failed {
			continue
		}
		bulkErr.Failed++
		if bulkErr.Failed > 1 {
			continue
		}
		if id, ok := action.optional("_id"); ok {
			bulkErr.FirstId, _ = id.str()
		}
		if text, ok := reason.optional("reason"); ok {
			bulkErr.FirstReason, _ = text.str()
		}
	}
	c.tel.ReportBroken(report_upsert, bulkErr)
	return bulkErr
}

func (c *Client) search(ctx context.Context, query string, body map[string]any) (node, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("allow_no_indices", "true").
		SetBody(body).
		Post("/" + c.name + "/_search")
	if err != nil {
		return node{}, err
	}
	if res.IsError() {
		return node{}, responseError(res)
	}
	return parseNode(query, res.Body())
}

func termsOrder() []map[string]string {
	return []map[string]string{
		{"_count": "desc"},
		{"_key": "asc"},
	}
}

func searchBody(aggregation map[string]any) map[string]any {
	return map[string]any{
		"size":  0,
		"query": map[string]any{"match_all": map[string]any{}},
		"aggs": map[string]any{
			AGGREGATION_KEY: aggregation,
		},
	}
}

func (c *Client) Frequencies(ctx context.Context, query index.TermsQuery) ([]index.Bucket, error) {
	root, err := c.search(ctx, report_frequencies, searchBody(map[string]any{
		"terms": map[string]any{
			"field":         query.Kind.Field(),
			"min_doc_count": query.MinDocCount,
			"size":          query.Size,
			"order":         termsOrder(),
		},
	}))
	if err != nil {
		c.tel.ReportBroken(report_frequencies, err)
		return nil, err
	}

	buckets, err := root.buckets("aggregations", AGGREGATION_KEY)
	if err != nil {
		c.tel.ReportBroken(report_frequencies, err)
		return nil, err
	}
	out := make([]index.Bucket, 0, len(buckets))
	for _, b := range buckets {
		key, count, err := b.keyCount()
		if err != nil {
			c.tel.ReportBroken(report_frequencies, err)
			return nil, err
		}
		out = append(out, index.Bucket{Key: key, Count: count})
	}
	return out, nil
}

func (c *Client) MonthlyHistogram(ctx context.Context, query index.HistogramQuery) ([]index.Series, error) {
	root, err := c.search(ctx, report_monthly_histogram, searchBody(map[string]any{
		"terms": map[string]any{
			"field": query.Kind.Field(),
			"size":  query.Size,
			"order": termsOrder(),
		},
		"aggs": map[string]any{
			AGGREGATION_KEY: map[string]any{
				"date_histogram": map[string]any{
					"field":             "date",
					"calendar_interval": "1M",
					"min_doc_count":     0,
				},
			},
		},
	}))
	if err != nil {
		c.tel.ReportBroken(report_monthly_histogram, err)
		return nil, err
	}

	out, err := parseHistogram(root)
	if err != nil {
		c.tel.ReportBroken(report_monthly_histogram, err)
		return nil, err
	}
	return out, nil
}

func parseHistogram(root node) ([]index.Series, error) {
	buckets, err := root.buckets("aggregations", AGGREGATION_KEY)
	if err != nil {
		return nil, err
	}
	out := make([]index.Series, 0, len(buckets))
	for _, b := range buckets {
		key, count, err := b.keyCount()
		if err != nil {
			return nil, err
		}
		monthBuckets, err := b.buckets(AGGREGATION_KEY)
		if err != nil {
			return nil, err
		}

		months := make([]index.Month, 0, len(monthBuckets))
		for _, mb := range monthBuckets {
			keyNode, err := mb.get("key")
			if err != nil {
				return nil, err
			}
			millis, err := keyNode.int()
			if err != nil {
				return nil, err
			}
			countNode, err := mb.get("doc_count")
			if err != nil {
				return nil, err
			}
			monthCount, err := countNode.uint()
			if err != nil {
				return nil, err
			}
			months = append(months, index.Month{
				Start: index.MonthStart(time.UnixMilli(millis)),
				Count: monthCount,
			})
		}

		out = append(out, index.Series{
			Key:    key,
			Count:  count,
			Months: months,
		})
	}
	return out, nil
}

func (c *Client) SignificantTags(ctx context.Context, query index.SignificantQuery) ([]index.SignificantGroup, error) {
	root, err := c.search(ctx, report_significant_tags, searchBody(map[string]any{
		"terms": map[string]any{
			"field":         query.GroupKind.Field(),
			"min_doc_count": query.MinDocCount,
			"size":          query.GroupSize,
			"order":         termsOrder(),
		},
		"aggs": map[string]any{
			AGGREGATION_KEY: map[string]any{
				"significant_terms": map[string]any{
					"field":         query.Kind.Field(),
					"size":          query.Size,
					"min_doc_count": index.SIGNIFICANT_MIN_DOC_COUNT,
					"jlh":           map[string]any{},
				},
			},
		},
	}))
	if err != nil {
		c.tel.ReportBroken(report_significant_tags, err)
		return nil, err
	}

	out, err := parseSignificant(root)
	if err != nil {
		c.tel.ReportBroken(report_significant_tags, err)
		return nil, err
	}
	return out, nil
}

func parseSignificant(root node) ([]index.SignificantGroup, error) {
	buckets, err := root.buckets("aggregations", AGGREGATION_KEY)
	if err != nil {
		return nil, err
	}
	out := make([]index.SignificantGroup, 0, len(buckets))
	for _, b := range buckets {
		key, count, err := b.keyCount()
		if err != nil {
			return nil, err
		}
		tagBuckets, err := b.buckets(AGGREGATION_KEY)
		if err != nil {
			return nil, err
		}

		tags := make([]index.SignificantTag, 0, len(tagBuckets))
		for _, tb := range tagBuckets {
			tag, tagCount, err := tb.keyCount()
			if err != nil {
				return nil, err
			}
			scoreNode, err := tb.get("score")
			if err != nil {
				return nil, err
			}
			score, err := scoreNode.float()
			if err != nil {
				return nil, err
			}
			tags = append(tags, index.SignificantTag{
				Key:   tag,
				Count: tagCount,
				Score: score,
			})
		}

		out = append(out, index.SignificantGroup{
			Key:   key,
			Count: count,
			Tags:  tags,
		})
	}
	return out, nil
}

func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}
