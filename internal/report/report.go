// Package report renders aggregations as html, json, tables and markdown.
package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"slices"
	"strings"
	"time"

	"fandom-vis/internal/cooccurrence"
	"fandom-vis/internal/index"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

//go:embed chord.html.tmpl
var chordSource string

var chordTemplate = template.Must(template.New("chord").Parse(chordSource))

type ChordOptions struct {
	Matrix cooccurrence.Matrix
	// Colors has one css color per name, defaults to Matrix.Colors().
	Colors []string
	Title  string
	// Width of the diagram in pixels, defaults to 1150.
	Width float64
	// Margin around the diagram for labels, defaults to 75.
	Margin   float64
	FontSize string
}

type chordData struct {
	Title    string
	Names    []string
	Values   [][]float64
	Colors   []string
	Width    float64
	Margin   float64
	FontSize template.CSS
}

// Chord writes a self contained html page with a chord diagram of the matrix.
func Chord(w io.Writer, opts ChordOptions) error {
	size := opts.Matrix.Size()
	if len(opts.Matrix.Values) != size {
		return fmt.Errorf("chord: matrix has %d rows for %d names", len(opts.Matrix.Values), size)
	}

	colors := opts.Colors
	if colors == nil {
		colors = opts.Matrix.Colors()
	}
	if len(colors) != size {
		return fmt.Errorf("chord: %d colors for %d names", len(colors), size)
	}

	data := chordData{
		Title:    opts.Title,
		Names:    opts.Matrix.Names,
		Values:   opts.Matrix.Values,
		Colors:   colors,
		Width:    opts.Width,
		Margin:   opts.Margin,
		FontSize: template.CSS(opts.FontSize),
	}
	if data.Title == "" {
		data.Title = "Relationships"
	}
	if data.Width <= 0 {
		data.Width = 1150
	}
	if data.Margin <= 0 {
		data.Margin = 75
	}
	if data.FontSize == "" {
		data.FontSize = "14px"
	}
	if data.Names == nil {
		data.Names = []string{}
	}
	if data.Values == nil {
		data.Values = [][]float64{}
	}

	return chordTemplate.Execute(w, data)
}

type shipCountJson struct {
	Tag        string    `json:"tag"`
	Characters [2]string `json:"characters"`
	Kind       string    `json:"kind"`
	Count      uint64    `json:"count"`
}

// ShipCountsJson writes ships as a json array in the given order.
func ShipCountsJson(w io.Writer, ships []cooccurrence.ShipCount) error {
	out := make([]shipCountJson, len(ships))
	for i, sc := range ships {
		out[i] = shipCountJson{
			Tag:        sc.Ship.String(),
			Characters: sc.Ship.Characters,
			Kind:       sc.Ship.Kind.String(),
			Count:      sc.Count,
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

type Format int

const (
	FORMAT_TABLE Format = iota
	FORMAT_MARKDOWN
	FORMAT_CSV
)

func (f Format) String() string {
	switch f {
	case FORMAT_TABLE:
		return "table"
	case FORMAT_MARKDOWN:
		return "markdown"
	case FORMAT_CSV:
		return "csv"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

func ParseFormat(text string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "table":
		return FORMAT_TABLE, nil
	case "markdown", "md":
		return FORMAT_MARKDOWN, nil
	case "csv":
		return FORMAT_CSV, nil
	default:
		return 0, fmt.Errorf("invalid format: %q (expected table, markdown or csv)", text)
	}
}

func cell(format Format, value any) any {
	if format != FORMAT_TABLE {
		return value
	}
	switch v := value.(type) {
	case uint64:
		return humanize.Comma(int64(v))
	case int:
		return humanize.Comma(int64(v))
	case float64:
		return humanize.FormatFloat("#,###.###", v)
	default:
		return value
	}
}

// Table renders rows under header, numbers get thousands separators in the
// table format and are left raw for markdown and csv.
func Table(w io.Writer, format Format, header []string, rows [][]any) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		out := make(table.Row, len(row))
		for i, value := range row {
			out[i] = cell(format, value)
		}
		t.AppendRow(out)
	}

	var rendered string
	switch format {
	case FORMAT_MARKDOWN:
		rendered = t.RenderMarkdown()
	case FORMAT_CSV:
		rendered = t.RenderCSV()
	default:
		rendered = t.Render()
	}
	_, err := io.WriteString(w, rendered+"\n")
	return err
}

// FrequenciesTable renders tag buckets ranked by count.
func FrequenciesTable(w io.Writer, format Format, kind index.TagKind, buckets []index.Bucket) error {
	rows := make([][]any, len(buckets))
	for i, b := range buckets {
		rows[i] = []any{i + 1, b.Key, b.Count}
	}
	return Table(w, format, []string{"#", kind.String(), "works"}, rows)
}

const monthLayout = "2006-01"

// ProportionTable renders monthly histograms with one row per month and one
// column per series, months missing from a series count as zero.
func ProportionTable(w io.Writer, format Format, series []index.Series) error {
	counts := make(map[time.Time][]uint64)
	var months []time.Time
	for i, s := range series {
		for _, m := range s.Months {
			row, ok := counts[m.Start]
			if !ok {
				row = make([]uint64, len(series))
				counts[m.Start] = row
				months = append(months, m.Start)
			}
			row[i] = m.Count
		}
	}
	slices.SortFunc(months, func(a, b time.Time) int {
		return a.Compare(b)
	})

	header := make([]string, 0, len(series)+1)
	header = append(header, "month")
	for _, s := range series {
		header = append(header, s.Key)
	}

	rows := make([][]any, len(months))
	for i, month := range months {
		row := make([]any, 0, len(series)+1)
		row = append(row, month.Format(monthLayout))
		for _, count := range counts[month] {
			row = append(row, count)
		}
		rows[i] = row
	}
	return Table(w, format, header, rows)
}

// SignificantMarkdown writes one section per group listing its significant tags.
func SignificantMarkdown(w io.Writer, groups []index.SignificantGroup) error {
	var sb strings.Builder
	sb.WriteString("# Significant tags\n\n")
	for _, group := range groups {
		fmt.Fprintf(&sb, "## %s\n\n", group.Key)
		for _, tag := range group.Tags {
			fmt.Fprintf(&sb, "- %s\n", tag.Key)
		}
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
