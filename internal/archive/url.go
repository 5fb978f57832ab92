package archive

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const DEFAULT_ENDPOINT = "https://archiveofourown.org"

// SearchQuery holds the work search filters that are set, every other filter is sent empty.
type SearchQuery struct {
	Fandom   string
	Creators string
}

var emptySearchParams = []string{
	"bookmarks_count",
	"character_names",
	"comments_count",
	"complete",
	"crossover",
	"freeform_names",
	"hits",
	"kudos_count",
	"language_id",
	"query",
	"rating_ids",
	"relationship_names",
	"revised_at",
	"title",
	"word_count",
}

// PageUrl returns the url of one page of search results, sorted by creation date
// ascending so page numbers stay stable while new works are posted.
func PageUrl(endpoint string, page int, query SearchQuery) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page must be >= 1, got %d", page)
	}
	base, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	base.Path += "/works/search"

	values := url.Values{}
	values.Set("commit", "Search")
	values.Set("page", strconv.Itoa(page))
	values.Set("utf8", "✓")
	for _, param := range emptySearchParams {
		values.Set(fmt.Sprintf("work_search[%s]", param), "")
	}
	values.Set("work_search[creators]", query.Creators)
	values.Set("work_search[fandom_names]", query.Fandom)
	values.Set("work_search[single_chapter]", "0")
	values.Set("work_search[sort_column]", "created_at")
	values.Set("work_search[sort_direction]", "asc")
	base.RawQuery = values.Encode()

	return base.String(), nil
}
