// Package cooccurrence builds a symmetric character co-occurrence matrix out
// of relationship tag frequencies.
package cooccurrence

import (
	"errors"
	"math"
	"slices"
	"strings"

	"fandom-vis/internal/components/assert"
	"fandom-vis/internal/components/telemetry"
	"fandom-vis/internal/ship"

	"github.com/antzucaro/matchr"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	report_unknown_kind      = "aggregate.unknown-ship-kind"
	report_unsupported_arity = "aggregate.unsupported-arity"
	report_kind_mismatch     = "aggregate.kind-mismatch"
)

// TagCount is the number of works a relationship tag appears on.
type TagCount struct {
	Tag   string
	Count uint64
}

// ShipCount is the summed count of all the tags that parse to the same Ship.
type ShipCount struct {
	Ship  ship.Ship `json:"ship"`
	Count uint64    `json:"count"`
}

// Matrix holds a square symmetric matrix indexed by Names.
//
// Values[i][j] is the number of works shipping Names[i] with Names[j],
// the diagonal is always zero.
type Matrix struct {
	Names  []string
	Values [][]float64
}

// Result is the output of Aggregate.
type Result struct {
	Matrix Matrix
	// Ships is sorted by count (descending) and then by Ship.Compare.
	Ships []ShipCount
	// Dropped is the number of input tags that were not part of the result.
	Dropped int
}

// Aggregate parses every tag in counts and keeps the ones that are ships of
// the given kind. Tags that fail to parse or are of a different kind are
// reported as warnings and dropped, they never fail the aggregation.
func Aggregate(tel telemetry.API, counts []TagCount, kind ship.Kind) Result {
	assert.NotNil(tel)

	merged := make(map[ship.Ship]uint64)
	dropped := 0
	for _, tc := range counts {
		parsed, err := ship.Parse(tc.Tag)
		if err != nil {
			dropped++
			switch {
			case errors.Is(err, ship.ErrUnknownShipKind):
				tel.ReportWarning(report_unknown_kind, tc.Tag, tc.Count)
			case errors.Is(err, ship.ErrUnsupportedArity):
				tel.ReportWarning(report_unsupported_arity, tc.Tag, tc.Count)
			}
			continue
		}
		if parsed.Kind != kind {
			dropped++
			tel.ReportWarning(report_kind_mismatch, tc.Tag, parsed.Kind.String())
			continue
		}
		merged[parsed] += tc.Count
	}

	ships := make([]ShipCount, 0, len(merged))
	for s, count := range merged {
		ships = append(ships, ShipCount{Ship: s, Count: count})
	}
	slices.SortFunc(ships, func(a, b ShipCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return a.Ship.Compare(b.Ship)
	})

	return Result{
		Matrix:  buildMatrix(ships),
		Ships:   ships,
		Dropped: dropped,
	}
}

func buildMatrix(ships []ShipCount) Matrix {
	seen := make(map[string]struct{})
	var names []string
	for _, sc := range ships {
		for _, name := range sc.Ship.Characters {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	slices.Sort(names)

	position := make(map[string]int, len(names))
	for i, name := range names {
		position[name] = i
	}

	values := make([][]float64, len(names))
	for i := range values {
		values[i] = make([]float64, len(names))
	}
	for _, sc := range ships {
		i := position[sc.Ship.Characters[0]]
		j := position[sc.Ship.Characters[1]]
		if i == j {
			continue
		}
		values[i][j] += float64(sc.Count)
		values[j][i] += float64(sc.Count)
	}

	if names == nil {
		names = []string{}
	}
	return Matrix{Names: names, Values: values}
}

// Size returns the number of distinct characters in the matrix.
func (m Matrix) Size() int {
	return len(m.Names)
}

// Colors returns one color per name, in index order.
func (m Matrix) Colors() []string {
	out := make([]string, len(m.Names))
	for i := range out {
		out[i] = Color(i)
	}
	return out
}

const (
	phi        = 1.618033
	saturation = 0.68
	value      = 0.69
)

// Color returns a hex color for the n-th character, hues are spread by the
// golden ratio so neighbouring indices get visually distinct colors.
func Color(index int) string {
	hue := math.Mod(float64(index)*360/phi, 360)
	return colorful.Hsv(hue, saturation, value).Hex()
}

// SimilarPair is two distinct names that are likely the same character.
type SimilarPair struct {
	Left       string
	Right      string
	Similarity float64
}

// SimilarNames returns every pair of names whose case insensitive Jaro-Winkler
// similarity is at least threshold, most similar first.
func SimilarNames(names []string, threshold float64) []SimilarPair {
	var out []SimilarPair
	for i, left := range names {
		for _, right := range names[i+1:] {
			if left == right {
				continue
			}
			similarity := matchr.JaroWinkler(strings.ToLower(left), strings.ToLower(right), false)
			if similarity >= threshold {
				out = append(out, SimilarPair{Left: left, Right: right, Similarity: similarity})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b SimilarPair) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	return out
}
