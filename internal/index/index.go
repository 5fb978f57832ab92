// Package index describes the store the fetched works are indexed into and
// the aggregations the reports are built from.
package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fandom-vis/internal/archive"
)

// DEFAULT_NAME is the name of the index (or table prefix) works are stored under.
const DEFAULT_NAME = "works"

type TagKind int

const (
	TAG_RELATIONSHIP TagKind = iota
	TAG_CHARACTER
	TAG_FREEFORM
)

var tagKinds = []TagKind{TAG_RELATIONSHIP, TAG_CHARACTER, TAG_FREEFORM}

// TagKinds returns every tag kind in declaration order.
func TagKinds() []TagKind {
	out := make([]TagKind, len(tagKinds))
	copy(out, tagKinds)
	return out
}

func (k TagKind) String() string {
	switch k {
	case TAG_RELATIONSHIP:
		return "relationship"
	case TAG_CHARACTER:
		return "character"
	case TAG_FREEFORM:
		return "freeform"
	default:
		return fmt.Sprintf("TagKind(%d)", int(k))
	}
}

// Field returns the name of the Work field holding tags of this kind, it is
// the same in the stored documents, the index mapping and the queries.
func (k TagKind) Field() string {
	switch k {
	case TAG_RELATIONSHIP:
		return "relationships"
	case TAG_CHARACTER:
		return "characters"
	case TAG_FREEFORM:
		return "freeforms"
	default:
		panic(fmt.Sprintf("unknown tag kind %d", int(k)))
	}
}

// Tags returns the tags of this kind on a work.
func (k TagKind) Tags(work archive.Work) []string {
	switch k {
	case TAG_RELATIONSHIP:
		return work.Relationships
	case TAG_CHARACTER:
		return work.Characters
	case TAG_FREEFORM:
		return work.Freeforms
	default:
		panic(fmt.Sprintf("unknown tag kind %d", int(k)))
	}
}

func ParseTagKind(text string) (TagKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, k := range tagKinds {
		if normalized == k.String() || normalized == k.Field() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid tag kind: %q (expected relationship, character or freeform)", text)
}

func (k *TagKind) UnmarshalText(text []byte) error {
	parsed, err := ParseTagKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Bucket is the number of distinct works carrying a tag.
type Bucket struct {
	Key   string
	Count uint64
}

// TermsQuery asks for the most frequent tags of a kind.
type TermsQuery struct {
	Kind TagKind
	// Size is the maximum number of buckets returned.
	Size int
	// MinDocCount drops buckets with fewer works.
	MinDocCount uint64
}

// Month is the number of works in the calendar month starting at Start (UTC).
type Month struct {
	Start time.Time
	Count uint64
}

// Series is a monthly histogram of the works carrying a tag.
type Series struct {
	Key   string
	Count uint64
	// Months is contiguous, months without works have a zero count.
	Months []Month
}

// HistogramQuery asks for the monthly histogram of the Size most frequent tags.
type HistogramQuery struct {
	Kind TagKind
	Size int
}

// SignificantTag is a tag that is over represented among the works of a group
// compared to the whole index.
type SignificantTag struct {
	Key   string
	Count uint64
	Score float64
}

type SignificantGroup struct {
	Key   string
	Count uint64
	Tags  []SignificantTag
}

// SignificantQuery groups the works by the GroupSize most frequent tags of
// GroupKind and looks for the Size most significant tags of Kind in each group.
type SignificantQuery struct {
	GroupKind   TagKind
	GroupSize   int
	MinDocCount uint64
	Kind        TagKind
	Size        int
}

// Index is a store of works that can be aggregated over.
//
// Every aggregation counts distinct works: a tag repeated on one work counts once.
// Buckets are ordered by count descending, then by key.
type Index interface {
	// Ensure creates the index if it does not exist yet.
	Ensure(ctx context.Context) error
	// Upsert stores the works, replacing any stored work with the same id.
	Upsert(ctx context.Context, works []archive.Work) error
	Frequencies(ctx context.Context, query TermsQuery) ([]Bucket, error)
	MonthlyHistogram(ctx context.Context, query HistogramQuery) ([]Series, error)
	SignificantTags(ctx context.Context, query SignificantQuery) ([]SignificantGroup, error)
	Close() error
}

// QueryShapeError means a response from the index did not have the expected
// structure, Path is the location of the first mismatch.
type QueryShapeError struct {
	Query    string
	Path     string
	Expected string
}

func (e *QueryShapeError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape at '%s': expected %s", e.Query, e.Path, e.Expected)
}

// MonthStart truncates t to the first instant of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SIGNIFICANT_MIN_DOC_COUNT is the number of works in a group a tag must be on
// before it can be significant for the group.
const SIGNIFICANT_MIN_DOC_COUNT = 3
